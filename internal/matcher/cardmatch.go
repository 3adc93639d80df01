package matcher

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

// ReasonNoEventCardMatch is C7's dedicated failure reason (spec.md §7).
const ReasonNoEventCardMatch FailReason = "NO_EVENT_CARD_MATCH"

// minSurnameLength is the shortest fighter surname eligible for the
// containment fallback (grounded on event_matcher.py's "surnames >= 4 chars").
const minSurnameLength = 4

// eventNumberPattern extracts a brand+number token ("UFC 315", "PFL 5",
// "Bellator 300", "ONE 162") from a classifier event hint.
var eventNumberPattern = regexp.MustCompile(`(?i)\b(UFC|PFL|Bellator|ONE)\s*0*(\d+)\b`)

// CardMatcher implements C7: match an EVENT_CARD-classified stream to a
// UFC/Boxing-style event by event number, falling back to fighter
// surname containment. Shares EventFetcher/FingerprintCache with C6.
type CardMatcher struct {
	Events EventFetcher
	Cache  FingerprintCache
}

// NewCardMatcher wires C7.
func NewCardMatcher(events EventFetcher, cache FingerprintCache) *CardMatcher {
	return &CardMatcher{Events: events, Cache: cache}
}

// Match implements the C7 algorithm from spec.md §4.6.
func (cm *CardMatcher) Match(ctx context.Context, cs domain.ClassifiedStream, groupID int64, league, provider string, targetDate time.Time, generation int64) MatchOutcome {
	if cm.Cache != nil {
		if entry, ok, err := cm.Cache.Get(ctx, groupID, cs.Normalized.Normalized, targetDate); err == nil && ok {
			return MatchOutcome{Kind: OutcomeMatched, Event: entry.Snapshot, Method: domain.MethodCache, OriginMethod: entry.MatchMethod, Confidence: 1.0}
		}
	}

	events, err := cm.Events.GetEventsWindow(ctx, league, provider, targetDate, 0)
	if err != nil || len(events) == 0 {
		return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoEventsOnDate}
	}

	// Strategy 1: event-number word-boundary match — load-bearing because
	// "UFC 32" must never match "UFC 325".
	if brand, num, ok := parseEventNumber(cs.EventHint); ok {
		for _, ev := range events {
			if eventNumberWordBoundaryMatches(ev.Name, brand, num) {
				return cm.accept(ctx, ev, domain.MethodKeyword, 1.0, groupID, cs, generation)
			}
		}
	}

	// Strategy 2: fighter-surname fallback.
	for _, ev := range events {
		if surnameContained(ev.Name, cs.Normalized.Normalized) {
			return cm.accept(ctx, ev, domain.MethodFuzzy, 0.75, groupID, cs, generation)
		}
	}

	return MatchOutcome{Kind: OutcomeFailed, Reason: ReasonNoEventCardMatch}
}

func (cm *CardMatcher) accept(ctx context.Context, ev domain.Event, method domain.MatchMethod, confidence float64, groupID int64, cs domain.ClassifiedStream, generation int64) MatchOutcome {
	if cm.Cache != nil {
		_ = cm.Cache.Set(ctx, domain.FingerprintCacheEntry{
			GroupID:     groupID,
			Fingerprint: cs.Normalized.Normalized,
			EventID:     ev.EventID,
			League:      ev.League,
			Provider:    ev.Provider,
			Snapshot:    ev,
			MatchMethod: method,
			Generation:  generation,
			LastTouched: time.Now().UTC(),
		})
	}
	return MatchOutcome{Kind: OutcomeMatched, Event: ev, Method: method, OriginMethod: method, Confidence: confidence}
}

func parseEventNumber(hint string) (brand string, number string, ok bool) {
	m := eventNumberPattern.FindStringSubmatch(hint)
	if m == nil {
		return "", "", false
	}
	return strings.ToUpper(m[1]), m[2], true
}

// eventNumberWordBoundaryMatches checks "<brand> <number>" appears in the
// event name as a whole token, e.g. stream "UFC 325" must not match event
// name "UFC 32: Smith vs Jones".
func eventNumberWordBoundaryMatches(eventName, brand, number string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(brand) + `\s*0*` + regexp.QuoteMeta(number) + `\b`)
	return re.MatchString(eventName)
}

// surnameContained checks whether any >=4-char word from the event name
// (treated as a candidate fighter surname) appears as a substring of the
// normalized stream text.
func surnameContained(eventName, streamText string) bool {
	lowerStream := strings.ToLower(streamText)
	for _, word := range strings.Fields(eventName) {
		w := strings.ToLower(strings.Trim(word, ":,."))
		if len(w) >= minSurnameLength && strings.Contains(lowerStream, w) {
			return true
		}
	}
	return false
}
