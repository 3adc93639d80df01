// Package channelmgr implements C12: channel numbering, upsert, and
// duplicate/child-group stream attachment. Numbering is grounded
// file-for-file on original_source/teamarr/database/channel_numbers.py
// (full file read): MANUAL mode's x01-boundary 10-block reservation,
// AUTO mode's sort_order-cumulative 10-block packing, and range
// validation/reassignment.
package channelmgr

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/store"
)

// MaxChannel is the highest channel number this engine will assign.
const MaxChannel = 9999

// Numberer assigns and validates channel numbers against a group's
// MANUAL or AUTO numbering policy.
type Numberer struct {
	db *store.Store
}

func NewNumberer(db *store.Store) *Numberer {
	return &Numberer{db: db}
}

// globalRange returns the configured channel_range_start/end from the
// key-value settings table, defaulting to (101, unbounded).
func (n *Numberer) globalRange(ctx context.Context) (start int, end *int, err error) {
	start = 101
	var raw string
	if err := n.db.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'channel_range_start'`).Scan(&raw); err == nil {
		if v, convErr := strconv.Atoi(raw); convErr == nil && v > 0 {
			start = v
		}
	} else if err != sql.ErrNoRows {
		return 0, nil, err
	}

	if err := n.db.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'channel_range_end'`).Scan(&raw); err == nil {
		if v, convErr := strconv.Atoi(raw); convErr == nil && v > 0 {
			end = &v
		}
	} else if err != sql.ErrNoRows {
		return 0, nil, err
	}

	return start, end, nil
}

type groupRow struct {
	id               int64
	channelStart     *int
	mode             domain.ChannelAssignmentMode
	sortOrder        int
	totalStreamCount int
}

func (n *Numberer) loadGroup(ctx context.Context, groupID int64) (*groupRow, error) {
	var start sql.NullInt64
	var mode string
	g := &groupRow{id: groupID}
	row := n.db.DB.QueryRowContext(ctx, `SELECT channel_start_number, channel_assignment_mode, sort_order, total_stream_count
		FROM event_epg_groups WHERE id = ?`, groupID)
	if err := row.Scan(&start, &mode, &g.sortOrder, &g.totalStreamCount); err != nil {
		return nil, err
	}
	if start.Valid {
		v := int(start.Int64)
		g.channelStart = &v
	}
	if mode == "" {
		mode = string(domain.AssignManual)
	}
	g.mode = domain.ChannelAssignmentMode(mode)
	return g, nil
}

func blocksNeeded(streamCount int) int {
	if streamCount <= 0 {
		return 1
	}
	return (streamCount + 9) / 10
}

// NextChannelNumber returns the next available channel number for
// groupID, auto-assigning a MANUAL group's channel_start_number on
// first use when autoAssign is set. Returns (0, nil) when numbering is
// disabled or the group's range is exhausted — not an error.
func (n *Numberer) NextChannelNumber(ctx context.Context, groupID int64, autoAssign bool) (int, error) {
	g, err := n.loadGroup(ctx, groupID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}

	channelStart := g.channelStart
	var blockEnd *int

	switch g.mode {
	case domain.AssignAuto:
		start, err := n.calculateAutoChannelStart(ctx, groupID, g.sortOrder)
		if err != nil {
			return 0, err
		}
		if start == 0 {
			log.Printf("[CHANNELMGR] could not calculate auto channel_start for group %d", groupID)
			return 0, nil
		}
		channelStart = &start
		rangeSize := blocksNeeded(g.totalStreamCount) * 10
		be := start + rangeSize - 1
		blockEnd = &be
	default: // manual
		if channelStart == nil && autoAssign {
			next, err := n.nextAvailableRangeStart(ctx)
			if err != nil {
				return 0, err
			}
			if next > 0 {
				if _, err := n.db.DB.ExecContext(ctx, `UPDATE event_epg_groups SET channel_start_number = ? WHERE id = ?`, next, groupID); err != nil {
					return 0, err
				}
				log.Printf("[CHANNELMGR] auto-assigned channel_start %d to manual group %d", next, groupID)
				channelStart = &next
			} else {
				log.Printf("[CHANNELMGR] could not auto-assign channel_start for group %d", groupID)
			}
		}
	}

	if channelStart == nil {
		return 0, nil
	}

	used, err := n.usedChannelNumbers(ctx, groupID)
	if err != nil {
		return 0, err
	}

	next := *channelStart
	for used[next] {
		next++
	}

	if blockEnd != nil && next > *blockEnd {
		log.Printf("[CHANNELMGR] group %d auto range exhausted (%d-%d)", groupID, *channelStart, *blockEnd)
		return 0, nil
	}
	if next > MaxChannel {
		log.Printf("[CHANNELMGR] channel number %d exceeds max %d", next, MaxChannel)
		return 0, nil
	}

	return next, nil
}

func (n *Numberer) usedChannelNumbers(ctx context.Context, groupID int64) (map[int]bool, error) {
	rows, err := n.db.DB.QueryContext(ctx, `SELECT channel_number FROM managed_channels WHERE group_id = ? AND deleted_at IS NULL ORDER BY channel_number`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	used := make(map[int]bool)
	for rows.Next() {
		var num int
		if err := rows.Scan(&num); err != nil {
			return nil, err
		}
		used[num] = true
	}
	return used, rows.Err()
}

// calculateAutoChannelStart walks AUTO top-level groups in sort_order,
// accumulating 10-block reservations, until it reaches groupID.
// Returns 0 (not an error) if groupID isn't an enabled top-level AUTO
// group, or if its computed start would exceed the effective range end.
func (n *Numberer) calculateAutoChannelStart(ctx context.Context, groupID int64, _ int) (int, error) {
	rangeStart, rangeEnd, err := n.globalRange(ctx)
	if err != nil {
		return 0, err
	}
	effectiveEnd := MaxChannel
	if rangeEnd != nil {
		effectiveEnd = *rangeEnd
	}

	rows, err := n.db.DB.QueryContext(ctx, `SELECT id, total_stream_count FROM event_epg_groups
		WHERE channel_assignment_mode = 'auto' AND parent_group_id IS NULL AND enabled = 1
		ORDER BY sort_order ASC`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	current := rangeStart
	for rows.Next() {
		var id int64
		var streamCount int
		if err := rows.Scan(&id, &streamCount); err != nil {
			return 0, err
		}
		if id == groupID {
			if current > effectiveEnd {
				log.Printf("[CHANNELMGR] auto group %d would start at %d, exceeds range end %d", groupID, current, effectiveEnd)
				return 0, nil
			}
			return current, nil
		}
		current += blocksNeeded(streamCount) * 10
	}
	return 0, rows.Err()
}

type reservedRange struct{ start, end int }

// nextAvailableRangeStart finds the next free x01 boundary (101, 111,
// 121, ...) for a new MANUAL group, respecting existing reservations.
func (n *Numberer) nextAvailableRangeStart(ctx context.Context) (int, error) {
	rangeStart, rangeEnd, err := n.globalRange(ctx)
	if err != nil {
		return 0, err
	}
	effectiveEnd := MaxChannel
	if rangeEnd != nil {
		effectiveEnd = *rangeEnd
	}

	rows, err := n.db.DB.QueryContext(ctx, `SELECT channel_start_number, total_stream_count FROM event_epg_groups
		WHERE enabled = 1 AND channel_start_number IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var ranges []reservedRange
	for rows.Next() {
		var start int
		var count sql.NullInt64
		if err := rows.Scan(&start, &count); err != nil {
			return 0, err
		}
		c := 10
		if count.Valid && count.Int64 > 0 {
			c = int(count.Int64)
		}
		ranges = append(ranges, reservedRange{start: start, end: start + c - 1})
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	highestUsed := rangeStart - 1
	for _, r := range ranges {
		if r.end > highestUsed {
			highestUsed = r.end
		}
	}

	nextTen := (highestUsed/10)*10 + 1
	if nextTen <= highestUsed {
		nextTen += 10
	}
	if nextTen < rangeStart {
		nextTen = ((rangeStart - 1) / 10) * 10 + 1
		if nextTen < rangeStart {
			nextTen += 10
		}
	}

	if nextTen > effectiveEnd {
		log.Printf("[CHANNELMGR] no available channel range (would start at %d)", nextTen)
		return 0, nil
	}
	return nextTen, nil
}

// GroupChannelRange returns the effective (start, end) range for a
// group, or (0, 0) if unconfigured.
func (n *Numberer) GroupChannelRange(ctx context.Context, groupID int64) (start, end int, err error) {
	g, err := n.loadGroup(ctx, groupID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	if g.mode == domain.AssignAuto {
		s, err := n.calculateAutoChannelStart(ctx, groupID, g.sortOrder)
		if err != nil || s == 0 {
			return 0, 0, err
		}
		return s, s + blocksNeeded(g.totalStreamCount)*10 - 1, nil
	}

	if g.channelStart == nil {
		return 0, 0, nil
	}
	count := g.totalStreamCount
	if count < 10 {
		count = 10
	}
	return *g.channelStart, *g.channelStart + count - 1, nil
}

// ValidateInRange reports whether channelNumber falls within groupID's
// current range.
func (n *Numberer) ValidateInRange(ctx context.Context, groupID int64, channelNumber int) (bool, error) {
	start, end, err := n.GroupChannelRange(ctx, groupID)
	if err != nil || start == 0 {
		return false, err
	}
	if channelNumber < start {
		return false, nil
	}
	if end != 0 && channelNumber > end {
		return false, nil
	}
	return true, nil
}

// ReassignOutOfRange picks a fresh channel number for channelID within
// groupID's range and persists it. Returns 0 if no number is available.
func (n *Numberer) ReassignOutOfRange(ctx context.Context, groupID, channelID int64) (int, error) {
	next, err := n.NextChannelNumber(ctx, groupID, true)
	if err != nil {
		return 0, err
	}
	if next == 0 {
		log.Printf("[CHANNELMGR] could not reassign channel %d - no available numbers", channelID)
		return 0, nil
	}
	if _, err := n.db.DB.ExecContext(ctx, `UPDATE managed_channels SET channel_number = ? WHERE id = ?`, next, channelID); err != nil {
		return 0, fmt.Errorf("reassign channel %d: %w", channelID, err)
	}
	log.Printf("[CHANNELMGR] reassigned channel %d -> %d", channelID, next)
	return next, nil
}
