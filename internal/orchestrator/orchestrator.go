// Package orchestrator implements C15: the per-group pipeline that
// turns one event_epg_group's raw upstream streams into managed
// channels. It is invoked once per enabled group, per scheduler tick
// (internal/scheduler), and chains every earlier component in spec.md
// §2's order: C9 filter -> C1 normalize -> C2 classify -> C5 cache hit,
// else C6/C7 match (backed by C3/C4) -> C8 UFC expansion -> C10
// create/delete decision -> C12 upsert + attach -> C11 priority ->
// programme emission, then a per-group deletion sweep for channels
// whose event no longer has a live stream this tick.
//
// Grounded on the cmd/plex-tuner/main.go + internal/sdtprobe/worker.go
// "gather candidates, process each, isolate per-item errors" shape: a
// panic or error on one stream is logged and counted, never aborts the
// rest of the group.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nreeb/teamarr/internal/channelmgr"
	"github.com/nreeb/teamarr/internal/classify"
	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/leaguemap"
	"github.com/nreeb/teamarr/internal/lifecycle"
	"github.com/nreeb/teamarr/internal/matcher"
	"github.com/nreeb/teamarr/internal/metrics"
	"github.com/nreeb/teamarr/internal/normalize"
	"github.com/nreeb/teamarr/internal/ordering"
	"github.com/nreeb/teamarr/internal/store"
	"github.com/nreeb/teamarr/internal/streamfilter"
	"github.com/nreeb/teamarr/internal/template"
	"github.com/nreeb/teamarr/internal/ufcsegments"
)

// StreamSource fetches one group's current raw streams from the
// downstream M3U layer. Declared narrow here (rather than importing a
// concrete dispatcharr client) for the same import-cycle-avoidance
// reason as matcher.EventFetcher.
type StreamSource interface {
	ListRawStreams(ctx context.Context, group domain.EventEPGGroup) ([]streamfilter.RawStream, error)
}

// ProgrammeSink receives one XMLTV slot per channel this tick touched.
// Left unimplemented by the orchestrator itself; internal/xmltv wires
// it during full-engine assembly.
type ProgrammeSink interface {
	WriteProgramme(ctx context.Context, channel domain.ManagedChannel, ev domain.Event, segment string, start, end time.Time) error
}

// Orchestrator wires every earlier component together for one group at
// a time. Fields are exported collaborators built once at engine
// startup and reused across ticks.
type Orchestrator struct {
	DB          *store.Store
	Classifier  *classify.Classifier
	Leagues     *leaguemap.Source
	TeamMatcher *matcher.TeamMatcher
	CardMatcher *matcher.CardMatcher
	Lifecycle   *lifecycle.Manager
	Channels    *channelmgr.Manager
	Ordering    *ordering.Service
	Streams     StreamSource
	Programmes  ProgrammeSink
	MMADuration time.Duration

	// ChannelNameTemplate overrides the built-in channel naming (event
	// name, else "away @ home"; see buildChannelName) when set,
	// rendered through internal/template against the event's variables.
	ChannelNameTemplate string
}

// New wires an Orchestrator from its collaborators.
func New(db *store.Store, classifier *classify.Classifier, leagues *leaguemap.Source, teamMatcher *matcher.TeamMatcher, cardMatcher *matcher.CardMatcher, lc *lifecycle.Manager, channels *channelmgr.Manager, order *ordering.Service, streams StreamSource, programmes ProgrammeSink, mmaDuration time.Duration) *Orchestrator {
	return &Orchestrator{
		DB: db, Classifier: classifier, Leagues: leagues, TeamMatcher: teamMatcher,
		CardMatcher: cardMatcher, Lifecycle: lc, Channels: channels, Ordering: order,
		Streams: streams, Programmes: programmes, MMADuration: mmaDuration,
	}
}

// Result summarizes one ProcessGroup run.
type Result struct {
	GroupID         int64
	TotalInput      int
	FilteredInclude int
	FilteredExclude int
	Matched         int
	Created         int
	Updated         int
	Deleted         int
	Skipped         int
	Failed          int
	Errors          int
}

// ProcessGroup runs the full pipeline for one top-level or child group.
// keywords is the group's enabled consolidation_exception_keywords,
// loaded by the caller so the orchestrator never owns that query.
func (o *Orchestrator) ProcessGroup(ctx context.Context, group domain.EventEPGGroup, keywords []domain.ExceptionKeyword, generation int64) (Result, error) {
	result := Result{GroupID: group.ID}

	raw, err := o.Streams.ListRawStreams(ctx, group)
	if err != nil {
		return result, fmt.Errorf("list streams for group %d: %w", group.ID, err)
	}

	filter := streamfilter.NewFilter(group.IncludeRegex, group.ExcludeRegex, group.TeamExtractRegex, group.SkipBuiltinExtractor)
	filtered := filter.Apply(raw)
	result.TotalInput = filtered.TotalInput
	result.FilteredInclude = filtered.FilteredInclude
	result.FilteredExclude = filtered.FilteredExclude

	ufcGroups := make(map[string][]ufcsegments.Match)
	rawByName := make(map[string]streamfilter.RawStream, len(filtered.Passed))
	matchedEventIDs := make(map[string]bool)

	for _, rs := range filtered.Passed {
		rawByName[rs.Name] = rs
		o.processStream(ctx, group, rs, keywords, generation, &result, ufcGroups, matchedEventIDs)
	}

	for _, matches := range ufcGroups {
		expanded := ufcsegments.Expand(matches, o.MMADuration, nil)
		for _, em := range expanded {
			rs, ok := rawByName[em.Stream.Normalized.Original]
			if !ok {
				log.Printf("[ORCHESTRATOR] group %d: could not recover source stream for UFC segment %s/%s", group.ID, em.Event.EventID, em.Segment)
				result.Errors++
				continue
			}
			o.applyMatch(ctx, group, rs, em.Stream, em.Event, em.Segment, keywords, generation, &result, matchedEventIDs)
		}
	}

	if err := o.sweepDeletions(ctx, group, matchedEventIDs, &result); err != nil {
		log.Printf("[ORCHESTRATOR] deletion sweep failed for group %d: %v", group.ID, err)
	}

	log.Printf("[ORCHESTRATOR] group %d (%s): input=%d matched=%d created=%d updated=%d deleted=%d failed=%d skipped=%d errors=%d",
		group.ID, group.Name, result.TotalInput, result.Matched, result.Created, result.Updated, result.Deleted, result.Failed, result.Skipped, result.Errors)
	return result, nil
}

// processStream runs C1/C2/C6-C8 for one filtered stream, recovering
// from a panic in any single stream's processing so the rest of the
// group still completes.
func (o *Orchestrator) processStream(ctx context.Context, group domain.EventEPGGroup, rs streamfilter.RawStream, keywords []domain.ExceptionKeyword, generation int64, result *Result, ufcGroups map[string][]ufcsegments.Match, matchedEventIDs map[string]bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ORCHESTRATOR] recovered panic processing stream %q (group %d): %v", rs.Name, group.ID, r)
			result.Errors++
		}
	}()

	ns := normalize.Normalize(rs.Name)
	cs := o.Classifier.Classify(ns)

	targetDate := time.Now().UTC()
	if ns.ExtractedDate != nil {
		targetDate = *ns.ExtractedDate
	}

	var outcome matcher.MatchOutcome
	switch cs.Category {
	case domain.CategoryEventCard:
		outcome = o.matchEventCard(ctx, cs, group, targetDate, generation)
	case domain.CategoryTeamVsTeam:
		if o.TeamMatcher == nil {
			result.Skipped++
			return
		}
		outcome = o.TeamMatcher.Match(ctx, cs, group.ID, targetDate, generation)
	default:
		result.Skipped++
		return
	}

	metrics.RecordMatchOutcome(group.Name, string(outcome.Kind))
	if outcome.Kind != matcher.OutcomeMatched {
		result.Failed++
		return
	}
	result.Matched++

	if reason := o.Lifecycle.CategorizeEventTiming(outcome.Event); reason != "" {
		result.Skipped++
		return
	}

	if ufcsegments.IsUFCEvent(outcome.Event) {
		key := outcome.Event.Provider + "/" + outcome.Event.EventID
		ufcGroups[key] = append(ufcGroups[key], ufcsegments.Match{Stream: cs, Event: outcome.Event, CardSegment: string(cs.CardSegment)})
		matchedEventIDs[key] = true
		return
	}

	o.applyMatch(ctx, group, rs, cs, outcome.Event, "", keywords, generation, result, matchedEventIDs)
}

// matchEventCard tries every candidate (league, provider) pair for an
// EVENT_CARD-classified stream: the classifier's own league hint first,
// then the group's configured leagues.
func (o *Orchestrator) matchEventCard(ctx context.Context, cs domain.ClassifiedStream, group domain.EventEPGGroup, targetDate time.Time, generation int64) matcher.MatchOutcome {
	if o.CardMatcher == nil {
		return matcher.MatchOutcome{Kind: matcher.OutcomeFailed, Reason: matcher.ReasonNoCandidateLeagues}
	}
	candidates := o.cardLeagueCandidates(cs.LeagueHint, group.Leagues)
	if len(candidates) == 0 {
		return matcher.MatchOutcome{Kind: matcher.OutcomeFailed, Reason: matcher.ReasonNoCandidateLeagues, Detail: "no candidate league/provider pairs"}
	}
	for _, cand := range candidates {
		outcome := o.CardMatcher.Match(ctx, cs, group.ID, cand.LeagueCode, cand.Provider, targetDate, generation)
		if outcome.Kind == matcher.OutcomeMatched {
			return outcome
		}
	}
	return matcher.MatchOutcome{Kind: matcher.OutcomeFailed, Reason: matcher.ReasonNoEventCardMatch}
}

func (o *Orchestrator) cardLeagueCandidates(hint string, groupLeagues []string) []domain.LeagueMapping {
	if o.Leagues == nil {
		return nil
	}
	codes := groupLeagues
	if hint != "" {
		codes = []string{hint}
	}
	var out []domain.LeagueMapping
	for _, code := range codes {
		out = append(out, o.Leagues.ForCode(code)...)
	}
	return out
}

// applyMatch runs C10's create decision, then C12 upsert/attach and
// C11 priority assignment, for one (stream, event) pair. segment is ""
// for a non-UFC match, or a canonicalized UFC segment code otherwise.
func (o *Orchestrator) applyMatch(ctx context.Context, group domain.EventEPGGroup, rs streamfilter.RawStream, cs domain.ClassifiedStream, ev domain.Event, segment string, keywords []domain.ExceptionKeyword, generation int64, result *Result, matchedEventIDs map[string]bool) {
	matchedEventIDs[ev.Provider+"/"+ev.EventID] = true

	decision := o.Lifecycle.ShouldCreateChannel(ev, true)
	if !decision.ShouldAct {
		result.Skipped++
		return
	}

	matchedKeyword, behavior := channelmgr.CheckExceptionKeyword(rs.Name, keywords)
	if behavior == domain.BehaviorIgnore {
		result.Skipped++
		return
	}
	var keywordPtr *string
	if matchedKeyword != "" {
		keywordPtr = &matchedKeyword
	}

	channelName := o.buildChannelName(ev, segment)
	tvgID := buildTVGID(group, ev, segment)
	scheduledDelete := o.Lifecycle.CalculateDeleteTime(ev)

	ch, created, err := o.Channels.Upsert(ctx, channelmgr.UpsertParams{
		GroupID: group.ID, EventID: ev.EventID, EventProvider: ev.Provider, ChannelName: channelName,
		TVGID: tvgID, HomeTeam: ev.HomeTeam.Name, AwayTeam: ev.AwayTeam.Name, EventDate: ev.StartTime,
		League: ev.League, Sport: ev.Sport, Venue: ev.Venue, Broadcasts: ev.Broadcasts,
		ExceptionKeyword: keywordPtr, ScheduledDeleteAt: &scheduledDelete,
	})
	if err != nil {
		log.Printf("[ORCHESTRATOR] upsert failed for event %s (group %d): %v", ev.EventID, group.ID, err)
		result.Errors++
		return
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}

	exists, err := o.Channels.StreamExistsOnChannel(ctx, ch.ID, rs.ID)
	if err != nil {
		log.Printf("[ORCHESTRATOR] stream-exists check failed for channel %d: %v", ch.ID, err)
		result.Errors++
	} else if !exists {
		priority := o.Ordering.ComputePriority(ctx, domain.ManagedChannelStream{
			StreamName: rs.Name, M3UAccountName: rs.M3UAccountName, SourceGroupID: group.ID,
		}, group.Name)
		if _, err := o.Channels.AddStreamToChannel(ctx, channelmgr.AddStreamParams{
			ManagedChannelID: ch.ID, DownstreamStreamID: rs.ID, StreamName: rs.Name, Priority: priority,
			SourceGroupID: group.ID, SourceGroupType: domain.SourceMain, M3UAccountID: group.M3UAccountID,
			M3UAccountName: rs.M3UAccountName, ExceptionKeyword: keywordPtr,
		}); err != nil {
			log.Printf("[ORCHESTRATOR] attach stream %q to channel %d failed: %v", rs.Name, ch.ID, err)
			result.Errors++
		}
	}

	if o.Programmes == nil {
		return
	}
	start, end := ev.StartTime, o.Lifecycle.EventEnd(ev)
	if segment != "" {
		start, end = ufcsegments.GetSegmentTimes(ev, segment, o.MMADuration)
	}
	displaySegment := segment
	if displaySegment == "" {
		displaySegment = string(cs.CardSegment)
	}
	if err := o.Programmes.WriteProgramme(ctx, *ch, ev, displaySegment, start, end); err != nil {
		log.Printf("[ORCHESTRATOR] programme emit failed for channel %d: %v", ch.ID, err)
	}
}

// buildChannelName applies o.ChannelNameTemplate when the operator has
// configured one, otherwise falls back to the event's own display name
// (or an "away @ home" composite, or the bare event id as a last
// resort), with the UFC segment suffix always appended.
func (o *Orchestrator) buildChannelName(ev domain.Event, segment string) string {
	if o.ChannelNameTemplate != "" {
		rendered := template.Render(o.ChannelNameTemplate, template.NewContext(ev, ""))
		return rendered + ufcsegments.DisplaySuffix(segment)
	}

	base := ev.Name
	if base == "" {
		if ev.AwayTeam.Name != "" && ev.HomeTeam.Name != "" {
			base = fmt.Sprintf("%s @ %s", ev.AwayTeam.Name, ev.HomeTeam.Name)
		} else {
			base = ev.EventID
		}
	}
	return base + ufcsegments.DisplaySuffix(segment)
}

func buildTVGID(group domain.EventEPGGroup, ev domain.Event, segment string) string {
	if segment == "" || segment == "main_card" || segment == "combined" {
		return fmt.Sprintf("teamarr-%d-%s-%s", group.ID, ev.Provider, ev.EventID)
	}
	return fmt.Sprintf("teamarr-%d-%s-%s-%s", group.ID, ev.Provider, ev.EventID, segment)
}

// sweepDeletions runs C10's delete decision against every active
// channel in the group, reconstructing just enough of an Event from
// the stored row to evaluate the policy. matchedEventIDs reports
// whether this tick saw a live stream for that event.
func (o *Orchestrator) sweepDeletions(ctx context.Context, group domain.EventEPGGroup, matchedEventIDs map[string]bool, result *Result) error {
	rows, err := o.DB.DB.QueryContext(ctx, `SELECT id, event_id, event_provider, home_team, away_team,
		event_date, league, sport, venue, exception_keyword
		FROM managed_channels WHERE group_id = ? AND deleted_at IS NULL`, group.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type row struct {
		id                   int64
		eventID, provider    string
		homeTeam, awayTeam   string
		eventDate            string
		league, sport, venue string
		exceptionKeyword     *string
	}
	var active []row
	for rows.Next() {
		var r row
		var exceptionKeyword *string
		if err := rows.Scan(&r.id, &r.eventID, &r.provider, &r.homeTeam, &r.awayTeam,
			&r.eventDate, &r.league, &r.sport, &r.venue, &exceptionKeyword); err != nil {
			return err
		}
		r.exceptionKeyword = exceptionKeyword
		active = append(active, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range active {
		startTime, _ := time.Parse(time.RFC3339, r.eventDate)
		ev := domain.Event{
			Provider: r.provider, EventID: r.eventID, StartTime: startTime,
			HomeTeam: domain.Team{Name: r.homeTeam}, AwayTeam: domain.Team{Name: r.awayTeam},
			League: r.league, Sport: r.sport, Venue: r.venue,
		}
		streamExists := matchedEventIDs[r.provider+"/"+r.eventID]
		decision := o.Lifecycle.ShouldDeleteChannel(ev, streamExists)
		if !decision.ShouldAct {
			continue
		}
		if err := o.Channels.SoftDelete(ctx, r.id, decision.Reason); err != nil {
			log.Printf("[ORCHESTRATOR] failed to delete channel %d: %v", r.id, err)
			result.Errors++
			continue
		}
		result.Deleted++
	}
	return nil
}
