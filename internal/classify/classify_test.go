package classify

import (
	"testing"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/normalize"
)

func classifyRaw(t *testing.T, raw string) domain.ClassifiedStream {
	t.Helper()
	c := New(DefaultPatterns())
	return c.Classify(normalize.Normalize(raw))
}

func TestClassifyPlaceholder(t *testing.T) {
	cs := classifyRaw(t, "Channel Off Air")
	if cs.Category != domain.CategoryPlaceholder {
		t.Errorf("got %v, want PLACEHOLDER", cs.Category)
	}
}

func TestClassifyEventCard(t *testing.T) {
	cs := classifyRaw(t, "UFC 315 Early Prelims")
	if cs.Category != domain.CategoryEventCard {
		t.Errorf("got %v, want EVENT_CARD", cs.Category)
	}
	if cs.EventHint != "UFC 315" {
		t.Errorf("EventHint = %q, want %q", cs.EventHint, "UFC 315")
	}
	if cs.CardSegment != domain.SegmentEarlyPrelims {
		t.Errorf("CardSegment = %q", cs.CardSegment)
	}
}

func TestClassifyCombatExclusion(t *testing.T) {
	cs := classifyRaw(t, "UFC 315 Weigh-In")
	if cs.Category != domain.CategoryPlaceholder {
		t.Errorf("got %v, want PLACEHOLDER (weigh-in excluded)", cs.Category)
	}
}

func TestClassifyTeamVsTeam(t *testing.T) {
	cs := classifyRaw(t, "Detroit Lions vs Green Bay Packers")
	if cs.Category != domain.CategoryTeamVsTeam {
		t.Errorf("got %v, want TEAM_VS_TEAM", cs.Category)
	}
}

func TestClassifyUnknown(t *testing.T) {
	cs := classifyRaw(t, "Random Channel Seven")
	if cs.Category != domain.CategoryUnknown {
		t.Errorf("got %v, want UNKNOWN", cs.Category)
	}
}
