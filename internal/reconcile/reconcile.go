// Package reconcile implements C13: a three-way diff between the
// engine's own managed_channels table, the downstream channel manager,
// and the engine's own numbering ranges, reporting (and optionally
// fixing) orphans, duplicates, and out-of-range channel numbers. The
// diff/classify/selectively-auto-fix shape follows
// internal/plex/dvr_sync.go's ReconcileDVRs (desired-vs-actual
// snapshot, per-item action classification, DryRun-style opt-in
// fixing) adapted from a DVR registration target to a downstream
// channel-manager target, per spec.md §4.12's three-way-diff contract.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/nreeb/teamarr/internal/channelmgr"
	"github.com/nreeb/teamarr/internal/store"
)

// Downstream is the narrow slice of the downstream channel-manager
// capability (spec.md §6) the reconciler needs: just enough to learn
// what channels currently exist there. Declared here rather than
// imported from a concrete downstream package so reconcile never
// depends on a specific downstream implementation.
type Downstream interface {
	ListChannelIDs(ctx context.Context) (map[int64]string, error) // downstream channel id -> tvg_id
}

// IssueKind classifies one reconciliation finding.
type IssueKind string

const (
	IssueOrphanEngine     IssueKind = "orphan_engine"     // engine row, missing downstream
	IssueOrphanDownstream IssueKind = "orphan_downstream" // downstream row, not engine-owned
	IssueDuplicate        IssueKind = "duplicate"         // >1 active engine row for the same key
	IssueOutOfRange       IssueKind = "out_of_range"      // channel number outside its group's range
)

// Issue is one reconciliation finding, with the action taken (if any).
type Issue struct {
	Kind             IssueKind
	ManagedChannelID int64
	Detail           string
	ActionTaken      string // "" if nothing was done
}

// Options selects which issue categories get auto-fixed when the
// top-level autoFix flag is set, mirroring spec.md §4.15's
// reconciliation settings group
// (auto_fix_orphan_teamarr/auto_fix_orphan_dispatcharr/auto_fix_duplicates).
// Out-of-range reassignment has no dedicated settings knob in spec.md
// and is always attempted under autoFix, same as the original's
// reassign-on-detect behavior for numbering.
type Options struct {
	AutoFixOrphanEngine     bool
	AutoFixOrphanDownstream bool
	AutoFixDuplicates       bool
	TVGIDPrefix             string // engine-owned tvg_id convention, e.g. "teamarr-"
}

// Reconciler runs the three-way diff against the engine's store.
type Reconciler struct {
	db         *store.Store
	channels   *channelmgr.Manager
	downstream Downstream
	opts       Options
}

func NewReconciler(db *store.Store, channels *channelmgr.Manager, downstream Downstream, opts Options) *Reconciler {
	return &Reconciler{db: db, channels: channels, downstream: downstream, opts: opts}
}

// Result is reconcile()'s return shape per spec.md §4.12's contract.
type Result struct {
	Issues       []Issue
	ActionsTaken int
	Summary      map[IssueKind]int
}

// Reconcile runs the full three-way diff. autoFix gates every
// category's Options flag at once; a category whose Options flag is
// false is still reported, just never auto-fixed, regardless of
// autoFix.
func (r *Reconciler) Reconcile(ctx context.Context, autoFix bool) (Result, error) {
	result := Result{Summary: make(map[IssueKind]int)}

	dupIssues, err := r.findDuplicates(ctx, autoFix && r.opts.AutoFixDuplicates)
	if err != nil {
		return result, fmt.Errorf("duplicate scan: %w", err)
	}
	result.Issues = append(result.Issues, dupIssues...)

	rangeIssues, err := r.findOutOfRange(ctx, autoFix)
	if err != nil {
		return result, fmt.Errorf("out-of-range scan: %w", err)
	}
	result.Issues = append(result.Issues, rangeIssues...)

	if r.downstream != nil {
		downstreamIssues, err := r.diffDownstream(ctx, autoFix)
		if err != nil {
			return result, fmt.Errorf("downstream diff: %w", err)
		}
		result.Issues = append(result.Issues, downstreamIssues...)
	}

	for _, issue := range result.Issues {
		result.Summary[issue.Kind]++
		if issue.ActionTaken != "" {
			result.ActionsTaken++
		}
	}
	return result, nil
}

type activeChannelRow struct {
	id               int64
	groupID          int64
	eventID          string
	eventProvider    string
	exceptionKeyword string
	channelNumber    int
	downstreamID     sql.NullInt64
	tvgID            string
	createdAt        time.Time
}

func (r *Reconciler) loadActiveChannels(ctx context.Context) ([]activeChannelRow, error) {
	rows, err := r.db.DB.QueryContext(ctx, `SELECT id, group_id, event_id, event_provider,
		COALESCE(exception_keyword, ''), channel_number, downstream_channel_id, tvg_id, created_at
		FROM managed_channels WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activeChannelRow
	for rows.Next() {
		var c activeChannelRow
		var createdAt string
		if err := rows.Scan(&c.id, &c.groupID, &c.eventID, &c.eventProvider, &c.exceptionKeyword,
			&c.channelNumber, &c.downstreamID, &c.tvgID, &createdAt); err != nil {
			return nil, err
		}
		c.createdAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// findDuplicates groups active channels by (group_id, event_id,
// event_provider, exception_keyword) and flags every group with more
// than one row. The oldest (lowest created_at, ties broken by id) is
// kept; the rest are soft-deleted when fix is true.
func (r *Reconciler) findDuplicates(ctx context.Context, fix bool) ([]Issue, error) {
	channels, err := r.loadActiveChannels(ctx)
	if err != nil {
		return nil, err
	}

	type key struct {
		groupID          int64
		eventID          string
		eventProvider    string
		exceptionKeyword string
	}
	groups := make(map[key][]activeChannelRow)
	for _, c := range channels {
		k := key{c.groupID, c.eventID, c.eventProvider, c.exceptionKeyword}
		groups[k] = append(groups[k], c)
	}

	var issues []Issue
	for _, rows := range groups {
		if len(rows) < 2 {
			continue
		}
		oldest := rows[0]
		for _, c := range rows[1:] {
			if c.createdAt.Before(oldest.createdAt) || (c.createdAt.Equal(oldest.createdAt) && c.id < oldest.id) {
				oldest = c
			}
		}
		for _, c := range rows {
			if c.id == oldest.id {
				continue
			}
			issue := Issue{
				Kind:             IssueDuplicate,
				ManagedChannelID: c.id,
				Detail:           fmt.Sprintf("duplicate of channel %d for event %s/%s", oldest.id, c.eventID, c.eventProvider),
			}
			if fix {
				if err := r.channels.SoftDelete(ctx, c.id, fmt.Sprintf("duplicate of channel %d", oldest.id)); err != nil {
					log.Printf("[RECONCILE] failed to soft-delete duplicate channel %d: %v", c.id, err)
				} else {
					issue.ActionTaken = fmt.Sprintf("soft-deleted (kept %d)", oldest.id)
				}
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// findOutOfRange checks every active channel's number against its
// group's current numbering range, reassigning when fix is true.
func (r *Reconciler) findOutOfRange(ctx context.Context, fix bool) ([]Issue, error) {
	channels, err := r.loadActiveChannels(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, c := range channels {
		inRange, err := r.channels.Numberer.ValidateInRange(ctx, c.groupID, c.channelNumber)
		if err != nil {
			log.Printf("[RECONCILE] range check failed for channel %d: %v", c.id, err)
			continue
		}
		if inRange {
			continue
		}
		issue := Issue{
			Kind:             IssueOutOfRange,
			ManagedChannelID: c.id,
			Detail:           fmt.Sprintf("channel %d out of range for group %d", c.channelNumber, c.groupID),
		}
		if fix {
			newNumber, err := r.channels.Numberer.ReassignOutOfRange(ctx, c.groupID, c.id)
			if err != nil {
				log.Printf("[RECONCILE] reassign failed for channel %d: %v", c.id, err)
			} else if newNumber != 0 {
				issue.ActionTaken = fmt.Sprintf("reassigned to %d", newNumber)
			}
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// diffDownstream classifies channels present only in the engine
// (orphan-engine) or only downstream under the engine's tvg_id
// namespace (orphan-downstream).
func (r *Reconciler) diffDownstream(ctx context.Context, autoFix bool) ([]Issue, error) {
	channels, err := r.loadActiveChannels(ctx)
	if err != nil {
		return nil, err
	}
	downstreamByID, err := r.downstream.ListChannelIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list downstream channels: %w", err)
	}

	engineTVGIDs := make(map[string]bool, len(channels))
	var issues []Issue

	for _, c := range channels {
		engineTVGIDs[c.tvgID] = true
		present := c.downstreamID.Valid
		if present {
			_, ok := downstreamByID[c.downstreamID.Int64]
			present = ok
		}
		if present {
			continue
		}
		issue := Issue{
			Kind:             IssueOrphanEngine,
			ManagedChannelID: c.id,
			Detail:           fmt.Sprintf("channel %d (tvg_id %s) missing downstream", c.id, c.tvgID),
		}
		if autoFix && r.opts.AutoFixOrphanEngine {
			if _, err := r.db.DB.ExecContext(ctx, `UPDATE managed_channels SET sync_status = 'pending' WHERE id = ?`, c.id); err != nil {
				log.Printf("[RECONCILE] failed to mark channel %d pending: %v", c.id, err)
			} else {
				issue.ActionTaken = "marked sync_status=pending for recreation"
			}
		}
		issues = append(issues, issue)
	}

	for downstreamID, tvgID := range downstreamByID {
		if r.opts.TVGIDPrefix == "" || len(tvgID) < len(r.opts.TVGIDPrefix) || tvgID[:len(r.opts.TVGIDPrefix)] != r.opts.TVGIDPrefix {
			continue // not engine-namespaced; leave untouched, might be a manual channel
		}
		if engineTVGIDs[tvgID] {
			continue
		}
		issues = append(issues, Issue{
			Kind:   IssueOrphanDownstream,
			Detail: fmt.Sprintf("downstream channel %d (tvg_id %s) not owned by any active engine row", downstreamID, tvgID),
			// Auto-fix intentionally off by default per spec.md §4.12:
			// the downstream system may hold manually-created channels
			// that merely share the engine's tvg_id prefix by coincidence.
		})
	}

	return issues, nil
}
