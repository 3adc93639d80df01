package ufcsegments

import (
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

func mkEvent(segTimes map[string]time.Time) domain.Event {
	return domain.Event{EventID: "315", Sport: "mma", League: "ufc", SegmentTimes: segTimes}
}

// S3 from spec.md §8: three segment streams expand into three matches
// with correct start/end, main_card end = start + mma_duration/2.
func TestExpandThreeSegments(t *testing.T) {
	early := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	prelims := time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	mainCard := time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)
	ev := mkEvent(map[string]time.Time{"early_prelims": early, "prelims": prelims, "main_card": mainCard})

	matches := []Match{
		{Stream: domain.ClassifiedStream{Normalized: domain.NormalizedStream{Normalized: "ufc 315 early prelims"}}, Event: ev, CardSegment: "early_prelims"},
		{Stream: domain.ClassifiedStream{Normalized: domain.NormalizedStream{Normalized: "ufc 315 prelims"}}, Event: ev, CardSegment: "prelims"},
		{Stream: domain.ClassifiedStream{Normalized: domain.NormalizedStream{Normalized: "ufc 315 main card"}}, Event: ev, CardSegment: "main_card"},
	}

	expanded := Expand(matches, 5*time.Hour, nil)
	if len(expanded) != 3 {
		t.Fatalf("expected 3 expanded matches, got %d", len(expanded))
	}

	bySegment := make(map[string]ExpandedMatch)
	for _, e := range expanded {
		bySegment[e.Segment] = e
	}
	if !bySegment["early_prelims"].SegmentStart.Equal(early) || !bySegment["early_prelims"].SegmentEnd.Equal(prelims) {
		t.Errorf("early_prelims timing wrong: %+v", bySegment["early_prelims"])
	}
	if !bySegment["main_card"].SegmentStart.Equal(mainCard) {
		t.Errorf("main_card start wrong: %+v", bySegment["main_card"])
	}
	wantEnd := mainCard.Add(5 * time.Hour / 2)
	if !bySegment["main_card"].SegmentEnd.Equal(wantEnd) {
		t.Errorf("main_card end = %v, want %v", bySegment["main_card"].SegmentEnd, wantEnd)
	}
}

func TestNonUFCPassesThrough(t *testing.T) {
	ev := domain.Event{EventID: "1", Sport: "football", League: "nfl"}
	matches := []Match{{Stream: domain.ClassifiedStream{}, Event: ev}}
	expanded := Expand(matches, 0, nil)
	if len(expanded) != 1 || expanded[0].Segment != "" {
		t.Fatalf("expected untouched passthrough, got %+v", expanded)
	}
}

func TestCanonicalizeSegmentRemapsToNearestPresent(t *testing.T) {
	ev := mkEvent(map[string]time.Time{"main_card": time.Now()})
	got := CanonicalizeSegment("prelims", ev)
	if got != "main_card" {
		t.Errorf("expected remap to main_card, got %q", got)
	}
}

func TestCanonicalizeSegmentTrustsDetectionWithNoESPNData(t *testing.T) {
	ev := domain.Event{EventID: "1"}
	if got := CanonicalizeSegment("prelims", ev); got != "prelims" {
		t.Errorf("expected trust when no segment data, got %q", got)
	}
}

func TestDisambiguatePrelimsByTimeReassignsToEarly(t *testing.T) {
	early := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	prelims := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	ev := mkEvent(map[string]time.Time{"early_prelims": early, "prelims": prelims})

	got := DisambiguatePrelimsByTime("prelims", 18, 15, true, ev)
	if got != "early_prelims" {
		t.Errorf("expected reassignment to early_prelims, got %q", got)
	}
}

func TestExtractTimeFromStream(t *testing.T) {
	cases := map[string]struct {
		h, m int
		ok   bool
	}{
		"UFC 315 Prelims 5:30 PM":  {17, 30, true},
		"UFC 315 Main Card 10pm":   {22, 0, true},
		"UFC 315 Early Prelims":    {0, 0, false},
	}
	for name, want := range cases {
		h, m, ok := ExtractTimeFromStream(name)
		if ok != want.ok || (ok && (h != want.h || m != want.m)) {
			t.Errorf("ExtractTimeFromStream(%q) = (%d,%d,%v), want (%d,%d,%v)", name, h, m, ok, want.h, want.m, want.ok)
		}
	}
}
