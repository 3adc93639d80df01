// Package lifecycle implements C10: the two independent create/delete
// timing decisions that gate whether a matched event gets a channel.
// Grounded file-for-file on
// original_source/teamarr/consumers/lifecycle/timing.py (full file
// read): ChannelLifecycleManager's threshold maps, the
// create-blocked-past-delete-threshold invariant, and
// categorize_event_timing's final-event exclusion logic including the
// now > event_end + 2h time-based fallback.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

// CreateTiming enumerates when a channel becomes eligible for creation,
// as an offset from the event day's midnight.
type CreateTiming string

const (
	CreateStreamAvailable CreateTiming = "stream_available"
	CreateSameDay         CreateTiming = "same_day"
	CreateDayBefore       CreateTiming = "day_before"
	Create2DaysBefore     CreateTiming = "2_days_before"
	Create3DaysBefore     CreateTiming = "3_days_before"
	Create1WeekBefore     CreateTiming = "1_week_before"
)

// DeleteTiming enumerates when a channel becomes eligible for deletion,
// as an offset from the event-end day's end-of-day.
type DeleteTiming string

const (
	DeleteStreamRemoved DeleteTiming = "stream_removed"
	Delete6HoursAfter   DeleteTiming = "6_hours_after"
	DeleteSameDay       DeleteTiming = "same_day"
	DeleteDayAfter      DeleteTiming = "day_after"
	Delete2DaysAfter    DeleteTiming = "2_days_after"
	Delete3DaysAfter    DeleteTiming = "3_days_after"
	Delete1WeekAfter    DeleteTiming = "1_week_after"
)

// ExcludedReason is why a matched, in-window event was nonetheless
// excluded from channel creation.
type ExcludedReason string

const (
	ReasonBeforeWindow ExcludedReason = "BEFORE_WINDOW"
	ReasonEventPast    ExcludedReason = "EVENT_PAST"
	ReasonEventFinal   ExcludedReason = "EVENT_FINAL"
)

// Decision is the result of a should-create/should-delete check.
type Decision struct {
	ShouldAct bool
	Reason    string
	Threshold time.Time // zero if not computed (e.g. stream_exists-only policies)
}

// Manager owns C10's policy configuration. Location is the "user
// timezone" the original's to_user_tz/now_user helpers convert into;
// defaults to UTC (set explicitly via NewManager if the deployment
// needs a different one — this engine has no per-user concept, only a
// single configured timezone).
type Manager struct {
	CreateTiming       CreateTiming
	DeleteTiming       DeleteTiming
	DefaultDuration    time.Duration
	SportDurations     map[string]time.Duration
	IncludeFinalEvents bool
	Location           *time.Location
}

// NewManager wires a Manager with the given policy and sport-duration
// overrides; Location defaults to UTC if nil.
func NewManager(create CreateTiming, del DeleteTiming, defaultDuration time.Duration, sportDurations map[string]time.Duration, includeFinal bool, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{
		CreateTiming:       create,
		DeleteTiming:       del,
		DefaultDuration:    defaultDuration,
		SportDurations:     sportDurations,
		IncludeFinalEvents: includeFinal,
		Location:           loc,
	}
}

func (m *Manager) now() time.Time {
	return time.Now().In(m.Location)
}

func (m *Manager) duration(sport string) time.Duration {
	if d, ok := m.SportDurations[sport]; ok && d > 0 {
		return d
	}
	if m.DefaultDuration > 0 {
		return m.DefaultDuration
	}
	return 3 * time.Hour
}

// EventEnd computes the event's estimated end time in the manager's
// timezone, using a sport-specific duration override when configured.
func (m *Manager) EventEnd(ev domain.Event) time.Time {
	return ev.StartTime.In(m.Location).Add(m.duration(ev.Sport))
}

// createThreshold computes when the channel becomes eligible for
// creation: an offset from the event day's local midnight.
func (m *Manager) createThreshold(ev domain.Event) time.Time {
	start := ev.StartTime.In(m.Location)
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, m.Location)

	switch m.CreateTiming {
	case CreateDayBefore:
		return dayStart.AddDate(0, 0, -1)
	case Create2DaysBefore:
		return dayStart.AddDate(0, 0, -2)
	case Create3DaysBefore:
		return dayStart.AddDate(0, 0, -3)
	case Create1WeekBefore:
		return dayStart.AddDate(0, 0, -7)
	default: // same_day and any unrecognized value fall back to same_day
		return dayStart
	}
}

// deleteThreshold computes when the channel becomes eligible for
// deletion, using the event's END date (so midnight-crossing games
// still delete based on when they actually finish) and end-of-day
// (23:59:59.999999999) as the base instant.
func (m *Manager) deleteThreshold(ev domain.Event) time.Time {
	end := m.EventEnd(ev)
	dayEnd := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999999999, m.Location)

	switch m.DeleteTiming {
	case Delete6HoursAfter:
		return end.Add(6 * time.Hour)
	case DeleteDayAfter:
		return dayEnd.AddDate(0, 0, 1)
	case Delete2DaysAfter:
		return dayEnd.AddDate(0, 0, 2)
	case Delete3DaysAfter:
		return dayEnd.AddDate(0, 0, 3)
	case Delete1WeekAfter:
		return dayEnd.AddDate(0, 0, 7)
	default: // same_day and any unrecognized value fall back to same_day
		return dayEnd
	}
}

// ShouldCreateChannel implements spec.md §4.10's should_create_channel:
// stream_available policy is purely stream-presence-gated; every other
// policy is threshold-gated, and creation is blocked once now is past
// the delete threshold (invariant (b): never create-then-immediately-delete).
func (m *Manager) ShouldCreateChannel(ev domain.Event, streamExists bool) Decision {
	if m.CreateTiming == CreateStreamAvailable {
		if streamExists {
			return Decision{ShouldAct: true, Reason: "stream available"}
		}
		return Decision{ShouldAct: false, Reason: "waiting for stream"}
	}

	createThreshold := m.createThreshold(ev)
	deleteThreshold := m.deleteThreshold(ev)
	now := m.now()

	if now.After(deleteThreshold) || now.Equal(deleteThreshold) {
		return Decision{ShouldAct: false, Reason: fmt.Sprintf("past delete threshold (%s)", deleteThreshold.Format("01/02 03:04 PM")), Threshold: deleteThreshold}
	}
	if now.After(createThreshold) || now.Equal(createThreshold) {
		return Decision{ShouldAct: true, Reason: fmt.Sprintf("create threshold reached (%s)", createThreshold.Format("01/02 03:04 PM")), Threshold: createThreshold}
	}
	return Decision{ShouldAct: false, Reason: fmt.Sprintf("before create threshold (%s)", createThreshold.Format("01/02 03:04 PM")), Threshold: createThreshold}
}

// ShouldDeleteChannel implements spec.md §4.10's should_delete_channel.
func (m *Manager) ShouldDeleteChannel(ev domain.Event, streamExists bool) Decision {
	if m.DeleteTiming == DeleteStreamRemoved {
		if !streamExists {
			return Decision{ShouldAct: true, Reason: "stream removed"}
		}
		return Decision{ShouldAct: false, Reason: "stream still exists"}
	}

	deleteThreshold := m.deleteThreshold(ev)
	now := m.now()
	if now.After(deleteThreshold) || now.Equal(deleteThreshold) {
		return Decision{ShouldAct: true, Reason: fmt.Sprintf("delete threshold reached (%s)", deleteThreshold.Format("01/02 03:04 PM")), Threshold: deleteThreshold}
	}
	return Decision{ShouldAct: false, Reason: fmt.Sprintf("before delete threshold (%s)", deleteThreshold.Format("01/02 03:04 PM")), Threshold: deleteThreshold}
}

// CalculateDeleteTime exposes the raw delete threshold for scheduling
// (ManagedChannel.ScheduledDeleteAt).
func (m *Manager) CalculateDeleteTime(ev domain.Event) time.Time {
	return m.deleteThreshold(ev)
}

// isEventFinal reports whether the provider-reported status marks the
// event as over.
func isEventFinal(ev domain.Event) bool {
	return ev.Status == domain.StatusFinal || ev.Status == domain.StatusCancelled
}

// CategorizeEventTiming implements spec.md §4.10 invariants (a)-(d):
// called after a successful match to decide whether a matched event
// falls outside the lifecycle window or is final and should be excluded.
// Returns "" when the event is eligible for channel creation.
func (m *Manager) CategorizeEventTiming(ev domain.Event) ExcludedReason {
	now := m.now()

	deleteThreshold := m.deleteThreshold(ev)
	var createThreshold time.Time
	hasCreateThreshold := m.CreateTiming != CreateStreamAvailable
	if hasCreateThreshold {
		createThreshold = m.createThreshold(ev)
	}

	if now.After(deleteThreshold) || now.Equal(deleteThreshold) {
		return ReasonEventPast
	}
	if hasCreateThreshold && now.Before(createThreshold) {
		return ReasonBeforeWindow
	}

	final := isEventFinal(ev)
	if !final {
		// Time-based fallback: recover from stale provider status by
		// treating the event as final once well past its estimated end.
		if now.After(m.EventEnd(ev).Add(2 * time.Hour)) {
			final = true
		}
	}
	if final && !m.IncludeFinalEvents {
		return ReasonEventFinal
	}
	return ""
}
