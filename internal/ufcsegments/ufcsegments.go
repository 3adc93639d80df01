// Package ufcsegments implements C8: turn one matched UFC/MMA event
// stream into up to three per-segment matches (early prelims, prelims,
// main card), timed from ESPN-sourced segment_times. Grounded file-for-
// file on original_source/teamarr/consumers/ufc_segments.py (full file
// read): SEGMENT_ORDER, canonicalize_segment, extract_time_from_stream,
// disambiguate_prelims_by_time, get_segment_times, expand_ufc_segments.
package ufcsegments

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

// SegmentOrder lists segment codes earliest to latest.
var SegmentOrder = []string{"early_prelims", "prelims", "main_card"}

// segmentDisplayNames mirrors SEGMENT_DISPLAY_NAMES: main_card and
// combined get no suffix (they are the default channel).
var segmentDisplayNames = map[string]string{
	"early_prelims": "Early Prelims",
	"prelims":       "Prelims",
	"main_card":     "",
	"combined":      "",
}

// Match pairs one classified stream with its matched event, mirroring
// the {"stream": ..., "event": ...} dicts expand_ufc_segments consumes.
type Match struct {
	Stream      domain.ClassifiedStream
	Event       domain.Event
	CardSegment string // pre-detected segment, if any; falls back to Stream.CardSegment
}

// ExpandedMatch is one emitted (event, segment) group.
type ExpandedMatch struct {
	Stream         domain.ClassifiedStream
	Event          domain.Event
	Segment        string
	SegmentDisplay string
	SegmentStart   time.Time
	SegmentEnd     time.Time
}

// IsUFCEvent reports whether event should receive segment handling.
func IsUFCEvent(ev domain.Event) bool {
	return ev.Sport == "mma" && ev.League == "ufc"
}

// DisplaySuffix returns e.g. " - Early Prelims", or "" for main_card.
func DisplaySuffix(segment string) string {
	display := segmentDisplayNames[segment]
	if display == "" {
		return ""
	}
	return " - " + display
}

var (
	timeWithMinutesRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)\b`)
	timeHourOnlyRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)
	time24hRe         = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
)

// ExtractTimeFromStream finds a clock-time token in a stream name for
// segment disambiguation, trying 12h-with-minutes, 12h-hour-only, then
// 24h formats, in that order.
func ExtractTimeFromStream(streamName string) (hour, minute int, ok bool) {
	if streamName == "" {
		return 0, 0, false
	}
	if m := timeWithMinutesRe.FindStringSubmatch(streamName); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		h = to24Hour(h, m[3])
		return h, min, true
	}
	if m := timeHourOnlyRe.FindStringSubmatch(streamName); m != nil {
		h, _ := strconv.Atoi(m[1])
		h = to24Hour(h, m[2])
		return h, 0, true
	}
	if m := time24hRe.FindStringSubmatch(streamName); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		// Only treat as a time if it looks like one, not like "UFC 324".
		if h >= 10 || h < 6 {
			return h, min, true
		}
	}
	return 0, 0, false
}

func to24Hour(hour int, ampm string) int {
	ampm = strings.ToUpper(ampm)
	if ampm == "PM" && hour < 12 {
		return hour + 12
	}
	if ampm == "AM" && hour == 12 {
		return 0
	}
	return hour
}

// DisambiguatePrelimsByTime reassigns a detected "prelims" segment to
// "early_prelims" when the stream's extracted clock time sits closer to
// the early-prelims start than the prelims start. Only "prelims" is
// ambiguous; every other segment is returned unchanged.
func DisambiguatePrelimsByTime(detected string, streamHour, streamMinute int, hasStreamTime bool, ev domain.Event) string {
	if detected != "prelims" || !hasStreamTime || ev.SegmentTimes == nil {
		return detected
	}
	early, hasEarly := ev.SegmentTimes["early_prelims"]
	prelims, hasPrelims := ev.SegmentTimes["prelims"]
	if !hasEarly || !hasPrelims {
		return detected
	}

	streamSecs := streamHour*3600 + streamMinute*60
	earlySecs := secondsOfDay(early)
	prelimsSecs := secondsOfDay(prelims)

	if timeDistance(streamSecs, earlySecs) < timeDistance(streamSecs, prelimsSecs) {
		return "early_prelims"
	}
	return detected
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// timeDistance is the shorter arc between two second-of-day values,
// handling midnight wrap-around (e.g. 23:00 vs 01:00 is 2h, not 22h).
func timeDistance(a, b int) int {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if wrapped := 86400 - diff; wrapped < diff {
		return wrapped
	}
	return diff
}

// CanonicalizeSegment validates detected against the event's
// ESPN-sourced segment_times. If ESPN has no segment data at all, the
// detection is trusted as-is. Otherwise it is remapped to the nearest
// present segment, preferring later-or-same position first, then
// earlier; absent any ordered match, main_card is preferred, else
// whichever segment ESPN did report.
func CanonicalizeSegment(detected string, ev domain.Event) string {
	if len(ev.SegmentTimes) == 0 {
		return detected
	}
	if _, ok := ev.SegmentTimes[detected]; ok {
		return detected
	}

	idx := indexOf(SegmentOrder, detected)
	if idx >= 0 {
		for _, seg := range SegmentOrder[idx:] {
			if _, ok := ev.SegmentTimes[seg]; ok {
				return seg
			}
		}
		for i := idx - 1; i >= 0; i-- {
			seg := SegmentOrder[i]
			if _, ok := ev.SegmentTimes[seg]; ok {
				return seg
			}
		}
	}

	if _, ok := ev.SegmentTimes["main_card"]; ok {
		return "main_card"
	}
	for seg := range ev.SegmentTimes {
		return seg // map iteration order is arbitrary but any present segment beats none
	}
	return detected
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

// GetSegmentTimes returns (start, end) for segment using ESPN's
// segment_times: end is the next present segment's start, or an
// estimated duration (mmaDuration/2) for the last one. mmaDuration is
// the configured full-card duration (spec.md's sport-duration
// settings), default 5h.
func GetSegmentTimes(ev domain.Event, segment string, mmaDuration time.Duration) (start, end time.Time) {
	if mmaDuration <= 0 {
		mmaDuration = 5 * time.Hour
	}
	start, ok := ev.SegmentTimes[segment]
	if !ok {
		return estimateSegmentTimesFallback(ev, segment, mmaDuration)
	}

	var present []string
	for _, seg := range SegmentOrder {
		if _, ok := ev.SegmentTimes[seg]; ok {
			present = append(present, seg)
		}
	}
	idx := indexOf(present, segment)
	if idx >= 0 && idx < len(present)-1 {
		end = ev.SegmentTimes[present[idx+1]]
	} else {
		end = start.Add(mmaDuration / 2)
	}
	return start, end
}

func estimateSegmentTimesFallback(ev domain.Event, segment string, mmaDuration time.Duration) (time.Time, time.Time) {
	if !ev.MainCardStart.IsZero() {
		switch segment {
		case "early_prelims":
			return ev.StartTime, ev.MainCardStart.Add(-90 * time.Minute)
		case "prelims":
			prelimsStart := ev.MainCardStart.Add(-90 * time.Minute)
			if ev.StartTime.After(prelimsStart) {
				prelimsStart = ev.StartTime
			}
			return prelimsStart, ev.MainCardStart
		default:
			return ev.MainCardStart, ev.MainCardStart.Add(mmaDuration / 2)
		}
	}

	segDuration := mmaDuration / 3
	switch segment {
	case "early_prelims":
		return ev.StartTime, ev.StartTime.Add(segDuration)
	case "prelims":
		start := ev.StartTime.Add(segDuration)
		return start, start.Add(segDuration)
	default:
		start := ev.StartTime.Add(2 * segDuration)
		return start, start.Add(segDuration)
	}
}

// Expand implements expand_ufc_segments: non-UFC matches pass through
// unchanged (as a single-element ExpandedMatch slice with Segment=""),
// UFC matches are grouped by (event, segment) and emitted with computed
// timing. isExcluded classifies weigh-in/press-conference content that
// should be dropped entirely (C9's exclude-regex surface).
func Expand(matches []Match, mmaDuration time.Duration, isExcluded func(streamName string) bool) []ExpandedMatch {
	var result []ExpandedMatch

	type key struct {
		eventID string
		segment string
	}
	grouped := make(map[key][]Match)
	eventByID := make(map[string]domain.Event)
	var eventOrder []string

	for _, m := range matches {
		if !IsUFCEvent(m.Event) {
			result = append(result, ExpandedMatch{Stream: m.Stream, Event: m.Event})
			continue
		}
		if isExcluded != nil && isExcluded(m.Stream.Normalized.Normalized) {
			continue
		}

		segment := m.CardSegment
		if segment == "" {
			segment = string(m.Stream.CardSegment)
		}
		if segment == "" {
			segment = "main_card"
		}
		if segment == "combined" {
			segment = "main_card"
		}

		if segment == "prelims" {
			h, mnt, ok := ExtractTimeFromStream(m.Stream.Normalized.Normalized)
			if ok {
				segment = DisambiguatePrelimsByTime(segment, h, mnt, ok, m.Event)
			}
		}

		segment = CanonicalizeSegment(segment, m.Event)

		k := key{m.Event.EventID, segment}
		if _, ok := eventByID[m.Event.EventID]; !ok {
			eventByID[m.Event.EventID] = m.Event
			eventOrder = append(eventOrder, m.Event.EventID)
		}
		grouped[k] = append(grouped[k], m)
	}

	for _, eventID := range eventOrder {
		ev := eventByID[eventID]
		for _, segment := range SegmentOrder {
			k := key{eventID, segment}
			streams, ok := grouped[k]
			if !ok || len(streams) == 0 {
				continue
			}
			start, end := GetSegmentTimes(ev, segment, mmaDuration)
			for _, m := range streams {
				result = append(result, ExpandedMatch{
					Stream:         m.Stream,
					Event:          ev,
					Segment:        segment,
					SegmentDisplay: segmentDisplayNames[segment],
					SegmentStart:   start,
					SegmentEnd:     end,
				})
			}
		}
	}

	return result
}
