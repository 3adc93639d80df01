// Package domain holds the core entity types shared across the matching
// and lifecycle engine. None of these types own persistence or matching
// behavior themselves; they are the nouns that internal/store,
// internal/matcher, internal/lifecycle, and internal/channelmgr operate on.
package domain

import "time"

// EventStatus is the lifecycle state a provider reports for an Event.
type EventStatus string

const (
	StatusScheduled EventStatus = "scheduled"
	StatusLive      EventStatus = "live"
	StatusFinal     EventStatus = "final"
	StatusPostponed EventStatus = "postponed"
	StatusCancelled EventStatus = "cancelled"
	StatusDelayed   EventStatus = "delayed"
)

// Team is a provider-scoped team or fighter record.
type Team struct {
	ProviderTeamID string
	Provider       string
	League         string
	Sport          string
	Name           string
	ShortName      string
	Abbreviation   string
	LogoURL        string
}

// Event is produced by a SportsProvider on demand; it is not persisted
// long-term (only its fingerprint-cache snapshot is).
type Event struct {
	Provider      string
	EventID       string
	StartTime     time.Time // UTC
	HomeTeam      Team
	AwayTeam      Team
	Status        EventStatus
	Sport         string
	League        string
	Name          string // event display name, used by event-card matching (e.g. "UFC 315: Pereira vs Ankalaev")
	EventNumber   int    // 0 if not applicable (e.g. non-combat sports)
	Venue         string
	Season        string
	Broadcasts    []string
	Scores        map[string]int // team-id -> score, when known
	SegmentTimes  map[string]time.Time // UFC only: segment_code -> UTC start
	MainCardStart time.Time             // UFC only; zero if unknown
}

// EventEnd computes the event's end time given a sport duration, honoring
// per-sport overrides the caller resolves before calling this.
func (e Event) EventEnd(duration time.Duration) time.Time {
	return e.StartTime.Add(duration)
}

// NormalizedStream is the ephemeral output of C1 Normalizer.
type NormalizedStream struct {
	Original        string
	Normalized      string
	ExtractedDate   *time.Time // date-only, in user tz once resolved by caller
	ExtractedTime   *time.Duration // time-of-day offset since midnight
	LeagueHint      string
	ProviderPrefix  string
}

// StreamCategory is the C2 Classifier's output discriminator.
type StreamCategory string

const (
	CategoryPlaceholder  StreamCategory = "PLACEHOLDER"
	CategoryEventCard    StreamCategory = "EVENT_CARD"
	CategoryTeamVsTeam   StreamCategory = "TEAM_VS_TEAM"
	CategoryUnknown      StreamCategory = "UNKNOWN"
)

// CardSegment is a UFC/MMA card subdivision.
type CardSegment string

const (
	SegmentEarlyPrelims CardSegment = "early_prelims"
	SegmentPrelims      CardSegment = "prelims"
	SegmentMainCard     CardSegment = "main_card"
	SegmentCombined     CardSegment = "combined"
)

// ClassifiedStream is the C2 Classifier's output.
type ClassifiedStream struct {
	Normalized  NormalizedStream
	Category    StreamCategory
	LeagueHint  string
	SportHint   string
	EventHint   string
	CardSegment CardSegment
}

// MatchMethod records how a stream was originally matched to an event.
// Preserved across cache hits per spec.md's "origin method" invariant.
type MatchMethod string

const (
	MethodCache    MatchMethod = "CACHE"
	MethodFuzzy    MatchMethod = "FUZZY"
	MethodKeyword  MatchMethod = "KEYWORD"
)

// FingerprintCacheEntry is the persisted C5 cache row.
type FingerprintCacheEntry struct {
	GroupID        int64
	Fingerprint    string
	EventID        string
	League         string
	Provider       string
	Snapshot       Event // self-contained, enough to reconstruct the Event without a provider call
	MatchMethod    MatchMethod
	Generation     int64
	LastTouched    time.Time
}

// DuplicateMode controls how C12 Channel Manager handles multiple streams
// resolving to the same event within a group.
type DuplicateMode string

const (
	DuplicateConsolidate DuplicateMode = "consolidate"
	DuplicateSeparate    DuplicateMode = "separate"
	DuplicateIgnore      DuplicateMode = "ignore"
)

// ChannelAssignmentMode selects C12's numbering strategy for a group.
type ChannelAssignmentMode string

const (
	AssignManual ChannelAssignmentMode = "manual"
	AssignAuto   ChannelAssignmentMode = "auto"
)

// ExceptionBehavior is how an ExceptionKeyword routes matching streams.
type ExceptionBehavior string

const (
	BehaviorConsolidate ExceptionBehavior = "consolidate"
	BehaviorSeparate    ExceptionBehavior = "separate"
	BehaviorIgnore      ExceptionBehavior = "ignore"
)

// ExceptionKeyword is a user-defined consolidation/routing rule.
type ExceptionKeyword struct {
	ID         int64
	Label      string
	MatchTerms []string
	Behavior   ExceptionBehavior
	Enabled    bool
}

// StreamOrderingRuleType selects how a StreamOrderingRule matches a stream.
type StreamOrderingRuleType string

const (
	RuleM3U   StreamOrderingRuleType = "m3u"
	RuleGroup StreamOrderingRuleType = "group"
	RuleRegex StreamOrderingRuleType = "regex"
)

// StreamOrderingRule is one entry in the priority-sorted rule list.
type StreamOrderingRule struct {
	ID       int64
	Type     StreamOrderingRuleType
	Value    string
	Priority int // 1-99, ascending evaluation order
}

// EventEPGGroup is the user-owned configuration for one M3U stream group.
type EventEPGGroup struct {
	ID                   int64
	Name                 string
	M3UAccountID         int64
	M3UGroupID           string
	Leagues              []string
	ParentGroupID        *int64
	ChannelAssignment    ChannelAssignmentMode
	ChannelStartNumber   *int
	TotalStreamCount     int
	SortOrder            int
	OverlapHandling      string
	DuplicateMode        DuplicateMode
	IncludeRegex         string
	ExcludeRegex         string
	TeamExtractRegex     string
	SkipBuiltinExtractor bool
	Enabled              bool
}

// IsChild reports whether this group attaches streams to a parent's
// channels instead of creating its own (spec.md §3, §4.11).
func (g EventEPGGroup) IsChild() bool { return g.ParentGroupID != nil }

// ManagedChannel is the engine's authoritative channel record.
type ManagedChannel struct {
	ID                  int64
	GroupID              int64
	EventID              string
	EventProvider        string
	TVGID                string
	ChannelName          string
	ChannelNumber        int
	LogoURL              string
	DownstreamChannelID  *int64
	ChannelGroupID       *int64
	ChannelProfileIDs    []int64
	PrimaryStreamID      *int64
	ExceptionKeyword     *string
	HomeTeam             string
	AwayTeam             string
	EventDate            time.Time
	League               string
	Sport                string
	Venue                string
	Broadcasts           []string
	ScheduledDeleteAt    *time.Time
	CreatedAt            time.Time
	DeletedAt            *time.Time
	DeleteReason         string
	SyncStatus           string
}

// IsDeleted reports whether this is a soft-deleted row.
func (c ManagedChannel) IsDeleted() bool { return c.DeletedAt != nil }

// SourceGroupType distinguishes a stream contributed by a parent vs a
// child group.
type SourceGroupType string

const (
	SourceMain  SourceGroupType = "main"
	SourceChild SourceGroupType = "child"
)

// ManagedChannelStream is one ordered stream attached to a ManagedChannel.
type ManagedChannelStream struct {
	ID                  int64
	ManagedChannelID     int64
	DownstreamStreamID   int64
	StreamName           string
	Priority             int
	SourceGroupID        int64
	SourceGroupType      SourceGroupType
	M3UAccountID         int64
	M3UAccountName       string
	ExceptionKeyword     *string
	AddedAt              time.Time
	RemovedAt            *time.Time
}

// LeagueMapping is a read-only, in-memory-loaded (league_code, provider)
// lookup entry.
type LeagueMapping struct {
	LeagueCode        string
	Provider          string
	ProviderLeagueID  string
	Sport             string
	DisplayName       string
	LeagueAlias       string
	FallbackProvider  string
	FallbackLeagueID  string
	Enabled           bool
}

// Sport backs the durations settings group and C10's event-end math.
type Sport struct {
	Code                  string
	DisplayName           string
	DefaultDurationMinutes int
}

// RegularTVGroup is a non-sports passthrough group: streams flow straight
// to the downstream system without C1-C11 matching, but still go through
// C12 upsert and C13 reconciliation.
type RegularTVGroup struct {
	ID           int64
	Name         string
	M3UAccountID int64
	M3UGroupID   string
	Enabled      bool
}

// ManagedChannelHistory is an append-only audit row for a channel change.
type ManagedChannelHistory struct {
	ID               int64
	ManagedChannelID int64
	ChangeType       string
	ChangeSource     string
	Notes            string
	CreatedAt        time.Time
}
