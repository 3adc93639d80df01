package matcher

import (
	"context"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

// MatchWindowDays is the default ± window around the target date searched
// for candidate events (spec.md §4.5 step 3): past events still matter
// here so just-completed games can attach scores; lifecycle later
// excludes them if policy requires.
const MatchWindowDays = 30

const (
	thresholdHighConfidence = 85.0
	thresholdBothTeams      = 60.0
	thresholdAcceptWithDate = 75.0
)

// OutcomeKind discriminates a MatchOutcome (design note: tagged variant,
// not an open dictionary).
type OutcomeKind string

const (
	OutcomeMatched  OutcomeKind = "matched"
	OutcomeFiltered OutcomeKind = "filtered"
	OutcomeFailed   OutcomeKind = "failed"
)

// FailReason enumerates C6's failure taxonomy (spec.md §7).
type FailReason string

const (
	ReasonNoCandidateLeagues FailReason = "NO_CANDIDATE_LEAGUES"
	ReasonNoEventsOnDate     FailReason = "NO_EVENTS_ON_DATE"
	ReasonNoMatch            FailReason = "NO_MATCH"
)

// MatchOutcome is C6/C7's tagged-variant result. OriginMethod records the
// method that *originally* produced a match even when this particular
// outcome came from the cache (Method == CACHE) — spec.md §4.4's
// "match_method records the original method" invariant.
type MatchOutcome struct {
	Kind         OutcomeKind
	Event        domain.Event
	Method       domain.MatchMethod
	OriginMethod domain.MatchMethod
	Confidence   float64
	Reason       FailReason
	Detail       string
}

// TeamLeagueIndex is the slice of C4 Team/League Cache that C6 needs.
// Kept as a narrow interface here (design note: small decoupling
// interfaces to avoid import cycles between matcher and teamcache).
type TeamLeagueIndex interface {
	FindCandidateLeagues(ctx context.Context, team1, team2, sport string) ([]domain.LeagueMapping, error)
}

// EventFetcher is the slice of the SportsProvider registry C6 needs:
// fetch events for a (league, provider) pair across a date window.
type EventFetcher interface {
	GetEventsWindow(ctx context.Context, league, provider string, target time.Time, windowDays int) ([]domain.Event, error)
}

// FingerprintCache is the slice of C5 that C6 reads/writes.
type FingerprintCache interface {
	Get(ctx context.Context, groupID int64, streamName string, targetDate time.Time) (domain.FingerprintCacheEntry, bool, error)
	Set(ctx context.Context, entry domain.FingerprintCacheEntry) error
}

// TeamMatcher implements C6.
type TeamMatcher struct {
	Fuzzy   *Matcher
	Teams   TeamLeagueIndex
	Events  EventFetcher
	Cache   FingerprintCache
}

// NewTeamMatcher wires C6 from its three collaborators.
func NewTeamMatcher(teams TeamLeagueIndex, events EventFetcher, cache FingerprintCache) *TeamMatcher {
	return &TeamMatcher{Fuzzy: NewMatcher(), Teams: teams, Events: events, Cache: cache}
}

// Match implements the C6 algorithm from spec.md §4.5.
func (tm *TeamMatcher) Match(ctx context.Context, cs domain.ClassifiedStream, groupID int64, targetDate time.Time, generation int64) MatchOutcome {
	// 1. Cache probe.
	if tm.Cache != nil {
		if entry, ok, err := tm.Cache.Get(ctx, groupID, cs.Normalized.Normalized, targetDate); err == nil && ok {
			return MatchOutcome{
				Kind:         OutcomeMatched,
				Event:        entry.Snapshot,
				Method:       domain.MethodCache,
				OriginMethod: entry.MatchMethod,
				Confidence:   1.0,
			}
		}
	}

	// 2. Candidate-league resolution.
	side1, side2 := splitSides(cs.Normalized.Normalized)
	if side1 == "" || side2 == "" {
		return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoCandidateLeagues, Detail: "could not split stream into two sides"}
	}
	candidates, err := tm.Teams.FindCandidateLeagues(ctx, side1, side2, cs.SportHint)
	if err != nil {
		return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoCandidateLeagues, Detail: err.Error()}
	}
	if len(candidates) == 0 && cs.LeagueHint != "" {
		candidates = []domain.LeagueMapping{{LeagueCode: cs.LeagueHint}}
	}
	if len(candidates) == 0 {
		return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoCandidateLeagues}
	}

	// 3. Per-candidate event fetch + 4. scoring.
	var best *scoredCandidate
	var bestCombined float64
	survivorsOnTarget := 0
	for _, cand := range candidates {
		events, err := tm.Events.GetEventsWindow(ctx, cand.LeagueCode, cand.Provider, targetDate, MatchWindowDays)
		if err != nil || len(events) == 0 {
			continue
		}
		for _, ev := range events {
			if sameDate(ev.StartTime, targetDate) {
				survivorsOnTarget++
			}
			homeScore := tm.sideScore(ev.HomeTeam, side1, side2)
			awayScore := tm.sideScore(ev.AwayTeam, side1, side2)
			score := min64(homeScore, awayScore)
			combined := homeScore + awayScore
			if best == nil || isBetterCandidate(combined, ev, *best, bestCombined, targetDate) {
				e := ev
				best = &scoredCandidate{event: e, score: score}
				bestCombined = combined
			}
		}
	}
	if best == nil {
		return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoEventsOnDate}
	}

	// 5. Thresholds.
	var method domain.MatchMethod = domain.MethodFuzzy
	accept := false
	switch {
	case best.score >= thresholdHighConfidence:
		accept = true
	case best.score >= thresholdBothTeams && best.score >= thresholdAcceptWithDate:
		accept = dateMatches(cs.Normalized, best.event) || survivorsOnTarget == 1
	case best.score >= thresholdBothTeams:
		accept = dateMatches(cs.Normalized, best.event) || survivorsOnTarget == 1
	}
	if !accept {
		return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoMatch, Detail: "best score below acceptance thresholds"}
	}

	outcome := MatchOutcome{Kind: OutcomeMatched, Event: best.event, Method: method, OriginMethod: method, Confidence: best.score / 100}
	if tm.Cache != nil {
		_ = tm.Cache.Set(ctx, domain.FingerprintCacheEntry{
			GroupID:     groupID,
			Fingerprint: cs.Normalized.Normalized,
			EventID:     best.event.EventID,
			League:      best.event.League,
			Provider:    best.event.Provider,
			Snapshot:    best.event,
			MatchMethod: method,
			Generation:  generation,
			LastTouched: time.Now().UTC(),
		})
	}
	return outcome
}

func (tm *TeamMatcher) sideScore(team domain.Team, side1, side2 string) float64 {
	patterns := tm.Fuzzy.GeneratePatterns(team)
	r1 := tm.Fuzzy.MatchesAny(patterns, side1)
	r2 := tm.Fuzzy.MatchesAny(patterns, side2)
	if r1.Score > r2.Score {
		return r1.Score
	}
	return r2.Score
}

// scoredCandidate pairs a candidate event with its computed side-min score.
type scoredCandidate struct {
	event domain.Event
	score float64
}

// isBetterCandidate applies the tie-break rules from spec.md §4.5 step 6:
// highest combined score, then closest to target date, then lower event id.
func isBetterCandidate(combined float64, ev domain.Event, curBest scoredCandidate, curCombined float64, target time.Time) bool {
	if combined != curCombined {
		return combined > curCombined
	}
	curDist := absDuration(curBest.event.StartTime.Sub(target))
	newDist := absDuration(ev.StartTime.Sub(target))
	if curDist != newDist {
		return newDist < curDist
	}
	return ev.EventID < curBest.event.EventID
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateMatches(n domain.NormalizedStream, ev domain.Event) bool {
	if n.ExtractedDate == nil {
		return false
	}
	return sameDate(*n.ExtractedDate, ev.StartTime)
}

// splitSides splits a normalized "team vs team" or "team @ team" string
// into its two side tokens using the same separator vocabulary C2 uses.
func splitSides(text string) (string, string) {
	lower := strings.ToLower(text)
	for _, sep := range []string{" vs ", " vs. ", " v ", " @ ", " at "} {
		if idx := strings.Index(lower, sep); idx >= 0 {
			left := strings.TrimSpace(text[:idx])
			right := strings.TrimSpace(text[idx+len(sep):])
			return left, right
		}
	}
	return "", ""
}
