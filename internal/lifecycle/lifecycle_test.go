package lifecycle

import (
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

func mkEvent(start time.Time, status domain.EventStatus) domain.Event {
	return domain.Event{EventID: "1", Sport: "football", League: "nfl", StartTime: start, Status: status}
}

func TestShouldCreateChannelSameDayPolicy(t *testing.T) {
	m := NewManager(CreateSameDay, DeleteSameDay, 3*time.Hour, nil, false, time.UTC)

	today := mkEvent(time.Now(), domain.StatusScheduled)

	// Event five days out: not yet eligible under a same-day policy.
	future := mkEvent(time.Now().Add(5*24*time.Hour), domain.StatusScheduled)
	d := m.ShouldCreateChannel(future, false)
	if d.ShouldAct {
		t.Errorf("expected no creation before same-day threshold, got %+v", d)
	}

	d = m.ShouldCreateChannel(today, false)
	if !d.ShouldAct {
		t.Errorf("expected creation on event day, got %+v", d)
	}
}

func TestShouldCreateChannelStreamAvailablePolicy(t *testing.T) {
	m := NewManager(CreateStreamAvailable, DeleteStreamRemoved, 3*time.Hour, nil, false, time.UTC)
	ev := mkEvent(time.Now().Add(72*time.Hour), domain.StatusScheduled)

	if d := m.ShouldCreateChannel(ev, false); d.ShouldAct {
		t.Errorf("expected no create without stream, got %+v", d)
	}
	if d := m.ShouldCreateChannel(ev, true); !d.ShouldAct {
		t.Errorf("expected create once stream exists, got %+v", d)
	}
}

func TestShouldCreateChannelBlockedPastDeleteThreshold(t *testing.T) {
	// Invariant (b): a very old event must never be "created" even
	// though its day-before create threshold has long passed, because
	// its delete threshold has passed too.
	m := NewManager(CreateDayBefore, DeleteSameDay, 3*time.Hour, nil, false, time.UTC)
	old := mkEvent(time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC), domain.StatusFinal)

	d := m.ShouldCreateChannel(old, false)
	if d.ShouldAct {
		t.Errorf("expected create blocked past delete threshold, got %+v", d)
	}
}

func TestShouldDeleteChannelStreamRemoved(t *testing.T) {
	m := NewManager(CreateSameDay, DeleteStreamRemoved, 3*time.Hour, nil, false, time.UTC)
	ev := mkEvent(time.Now(), domain.StatusLive)

	if d := m.ShouldDeleteChannel(ev, true); d.ShouldAct {
		t.Errorf("expected no delete while stream exists, got %+v", d)
	}
	if d := m.ShouldDeleteChannel(ev, false); !d.ShouldAct {
		t.Errorf("expected delete once stream gone, got %+v", d)
	}
}

func TestShouldDeleteChannelThresholdPolicy(t *testing.T) {
	m := NewManager(CreateSameDay, Delete6HoursAfter, 3*time.Hour, nil, false, time.UTC)
	// Started 2h ago, 3h duration => ends 1h from now; 6h-after
	// threshold is still 7h away.
	ev := mkEvent(time.Now().Add(-2*time.Hour), domain.StatusFinal)
	if d := m.ShouldDeleteChannel(ev, true); d.ShouldAct {
		t.Errorf("expected no delete yet, got %+v", d)
	}

	longAgo := mkEvent(time.Now().Add(-24*time.Hour), domain.StatusFinal)
	if d := m.ShouldDeleteChannel(longAgo, true); !d.ShouldAct {
		t.Errorf("expected delete once past threshold, got %+v", d)
	}
}

func TestCategorizeEventTimingBeforeWindow(t *testing.T) {
	m := NewManager(Create1WeekBefore, Delete1WeekAfter, 3*time.Hour, nil, false, time.UTC)
	farFuture := mkEvent(time.Now().Add(30*24*time.Hour), domain.StatusScheduled)
	if got := m.CategorizeEventTiming(farFuture); got != ReasonBeforeWindow {
		t.Errorf("expected BEFORE_WINDOW, got %q", got)
	}
}

func TestCategorizeEventTimingEventPast(t *testing.T) {
	m := NewManager(CreateSameDay, DeleteSameDay, 3*time.Hour, nil, false, time.UTC)
	old := mkEvent(time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC), domain.StatusFinal)
	if got := m.CategorizeEventTiming(old); got != ReasonEventPast {
		t.Errorf("expected EVENT_PAST, got %q", got)
	}
}

func TestCategorizeEventTimingFinalStatusExcluded(t *testing.T) {
	m := NewManager(CreateSameDay, Delete1WeekAfter, 3*time.Hour, nil, false, time.UTC)
	ev := mkEvent(time.Now().Add(-1*time.Hour), domain.StatusFinal)
	if got := m.CategorizeEventTiming(ev); got != ReasonEventFinal {
		t.Errorf("expected EVENT_FINAL, got %q", got)
	}
}

func TestCategorizeEventTimingIncludeFinalEventsOverride(t *testing.T) {
	m := NewManager(CreateSameDay, Delete1WeekAfter, 3*time.Hour, nil, true, time.UTC)
	ev := mkEvent(time.Now().Add(-1*time.Hour), domain.StatusFinal)
	if got := m.CategorizeEventTiming(ev); got != "" {
		t.Errorf("expected eligible when IncludeFinalEvents is set, got %q", got)
	}
}

func TestCategorizeEventTimingStaleStatusFallback(t *testing.T) {
	// Event ended 3h ago by clock time but the provider never flipped
	// status away from "scheduled" -- the 2h-past-end fallback should
	// still exclude it as final.
	m := NewManager(CreateSameDay, Delete1WeekAfter, 1*time.Hour, nil, false, time.UTC)
	ev := mkEvent(time.Now().Add(-4*time.Hour), domain.StatusScheduled)
	if got := m.CategorizeEventTiming(ev); got != ReasonEventFinal {
		t.Errorf("expected EVENT_FINAL via time fallback, got %q", got)
	}
}

func TestSportDurationOverride(t *testing.T) {
	m := NewManager(CreateSameDay, DeleteSameDay, 3*time.Hour, map[string]time.Duration{"mma": 5 * time.Hour}, false, time.UTC)
	ev := domain.Event{EventID: "2", Sport: "mma", StartTime: time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)}
	got := m.EventEnd(ev)
	want := ev.StartTime.Add(5 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("EventEnd = %v, want %v", got, want)
	}
}
