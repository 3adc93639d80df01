// Package scheduler implements C14: a single-thread periodic driver
// that guarantees at most one tick runs at a time, running immediately
// on startup and then on a fixed interval until stopped. Each tick
// executes, in order, spec.md §4.13's five steps: throttled M3U
// refresh, EPG generation (orchestrator run across every enabled
// group), scheduled deletions, light (detect-only) reconciliation, and
// history cleanup.
//
// Grounded on internal/sdtprobe/worker.go's Run loop: the
// ForceRescan-style buffered trigger channel for manual/HTTP-triggered
// runs, StartDelay before the first tick, and the idle
// select-on-ctx/timer/trigger sleep pattern. Unlike the probe worker
// (whose candidate set can be empty, giving it a short idle-sleep
// path), the scheduler's tick always runs its five steps — so there is
// a single fixed-interval sleep, not an idle/active split.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/nreeb/teamarr/internal/metrics"
	"github.com/nreeb/teamarr/internal/reconcile"
	"github.com/nreeb/teamarr/internal/store"
)

const (
	defaultTickInterval    = 15 * time.Minute
	defaultRefreshThrottle = 60 * time.Minute
	defaultStartDelay      = 10 * time.Second
)

// ProgressReporter receives a narration of tick progress for SSE
// consumers. Declared locally so scheduler never imports the web
// surface; internal/webapi's broadcaster is the only implementation.
type ProgressReporter interface {
	Report(step, detail string)
}

// Config wires the scheduler's step implementations. Every func field
// is required except where noted; Engine-level wiring supplies them.
type Config struct {
	TickInterval    time.Duration // default 15m
	RefreshThrottle time.Duration // default 60m; RefreshM3U is skipped if last run was more recent
	StartDelay      time.Duration // default 10s

	// Progress narrates tick steps to any SSE subscribers; nil is fine,
	// every call site below guards it.
	Progress ProgressReporter

	// RefreshM3U pulls fresh stream lists from the downstream M3U
	// accounts. Throttled by RefreshThrottle.
	RefreshM3U func(ctx context.Context) error

	// RunEPGGeneration runs the orchestrator across every enabled
	// group (and child group) for the given processing generation.
	RunEPGGeneration func(ctx context.Context, generation int64) error

	// RunScheduledDeletions sweeps channels whose scheduled_delete_at
	// has passed independent of group membership (e.g. a channel
	// whose group was disabled mid-cycle).
	RunScheduledDeletions func(ctx context.Context) error

	// RunReconciliation runs a detect-only pass (spec.md §4.13: "light
	// reconciliation"); the scheduler never auto-fixes.
	RunReconciliation func(ctx context.Context) (reconcile.Result, error)

	// CleanupHistory prunes aged managed_channel_history rows.
	CleanupHistory func(ctx context.Context) error
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.RefreshThrottle <= 0 {
		c.RefreshThrottle = defaultRefreshThrottle
	}
	if c.StartDelay == 0 {
		c.StartDelay = defaultStartDelay
	} else if c.StartDelay < 0 {
		c.StartDelay = 0
	}
}

// Scheduler drives ticks. ForceRun is a buffered (cap 1) trigger for a
// manual/HTTP-initiated run, mirroring sdtprobe.Worker.ForceRescan.
type Scheduler struct {
	cfg            Config
	db             *store.Store
	ForceRun       chan struct{}
	lastM3URefresh time.Time
}

// New wires a Scheduler from cfg and the store it bumps
// processing_generation against.
func New(cfg Config, db *store.Store) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{cfg: cfg, db: db, ForceRun: make(chan struct{}, 1)}
}

// SetProgress wires a narrator after construction, since the web
// surface that implements ProgressReporter is typically built from the
// already-constructed Scheduler (see internal/webapi.New).
func (s *Scheduler) SetProgress(p ProgressReporter) {
	s.cfg.Progress = p
}

// TriggerRun requests an out-of-cycle tick; non-blocking, coalesces
// with any already-pending request.
func (s *Scheduler) TriggerRun() {
	select {
	case s.ForceRun <- struct{}{}:
	default:
	}
}

func (s *Scheduler) drainAndSendForceRun() {
	for {
		select {
		case <-s.ForceRun:
		default:
			s.ForceRun <- struct{}{}
			return
		}
	}
}

// Run blocks until ctx is cancelled, running one tick immediately and
// then one per TickInterval (or whenever TriggerRun fires).
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.StartDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.StartDelay):
		}
	}

	for {
		s.tick(ctx)

		timer := time.NewTimer(s.cfg.TickInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.ForceRun:
			timer.Stop()
		}
	}
}

// tick runs the five-step sequence, logging and continuing past any
// single step's error so one broken step never blocks the rest.
func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	log.Printf("[SCHEDULER] tick starting")
	s.report("tick", "starting")

	if s.cfg.RefreshM3U != nil {
		if time.Since(s.lastM3URefresh) >= s.cfg.RefreshThrottle {
			s.report("m3u_refresh", "running")
			if err := s.cfg.RefreshM3U(ctx); err != nil {
				log.Printf("[SCHEDULER] m3u refresh failed: %v", err)
				s.report("m3u_refresh", "failed: "+err.Error())
			} else {
				s.lastM3URefresh = time.Now()
				s.report("m3u_refresh", "done")
			}
		} else {
			log.Printf("[SCHEDULER] m3u refresh skipped, last run %s ago", time.Since(s.lastM3URefresh).Round(time.Second))
			s.report("m3u_refresh", "skipped")
		}
	}

	generation, err := s.bumpGeneration(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] failed to bump processing generation: %v", err)
	} else if s.cfg.RunEPGGeneration != nil {
		s.report("epg_generation", "running")
		if err := s.cfg.RunEPGGeneration(ctx, generation); err != nil {
			log.Printf("[SCHEDULER] epg generation failed: %v", err)
			s.report("epg_generation", "failed: "+err.Error())
		} else {
			s.report("epg_generation", "done")
		}
	}

	if s.cfg.RunScheduledDeletions != nil {
		s.report("scheduled_deletions", "running")
		if err := s.cfg.RunScheduledDeletions(ctx); err != nil {
			log.Printf("[SCHEDULER] scheduled deletions failed: %v", err)
			s.report("scheduled_deletions", "failed: "+err.Error())
		} else {
			s.report("scheduled_deletions", "done")
		}
	}

	if s.cfg.RunReconciliation != nil {
		s.report("reconciliation", "running")
		if result, err := s.cfg.RunReconciliation(ctx); err != nil {
			log.Printf("[SCHEDULER] reconciliation failed: %v", err)
			s.report("reconciliation", "failed: "+err.Error())
		} else {
			if len(result.Issues) > 0 {
				log.Printf("[SCHEDULER] reconciliation found %d issue(s): %+v", len(result.Issues), result.Summary)
			}
			s.report("reconciliation", "done")
		}
	}

	if s.cfg.CleanupHistory != nil {
		if err := s.cfg.CleanupHistory(ctx); err != nil {
			log.Printf("[SCHEDULER] history cleanup failed: %v", err)
		}
	}

	elapsed := time.Since(start)
	log.Printf("[SCHEDULER] tick finished in %s", elapsed.Round(time.Millisecond))
	metrics.RecordTick(elapsed.Seconds())
	s.report("tick", "finished")
}

func (s *Scheduler) report(step, detail string) {
	if s.cfg.Progress != nil {
		s.cfg.Progress.Report(step, detail)
	}
}

// bumpGeneration atomically advances processing_generation and returns
// the new value. Every fingerprint-cache row not touched at this
// generation becomes eligible for EvictStale afterward.
func (s *Scheduler) bumpGeneration(ctx context.Context) (int64, error) {
	if _, err := s.db.DB.ExecContext(ctx, `UPDATE processing_generation SET generation = generation + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	var gen int64
	if err := s.db.DB.QueryRowContext(ctx, `SELECT generation FROM processing_generation WHERE id = 1`).Scan(&gen); err != nil {
		return 0, err
	}
	return gen, nil
}
