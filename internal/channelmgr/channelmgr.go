// Channel upsert, duplicate-mode consolidation, and child-group stream
// attachment — the rest of C12. Grounded file-for-file on
// original_source/teamarr/consumers/child_processor.py (full file
// read): ChildStreamProcessor's exception-keyword routing, the
// keyword-channel-then-main-channel fallback, stream_exists_on_channel
// idempotency check, and the append-only history log. Upsert-by-key
// (group, event, provider, exception_keyword) mirrors the unique index
// already declared on managed_channels in internal/store/store.go.
package channelmgr

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/store"
)

// Manager owns channel numbering plus the upsert/attach operations
// that act on managed_channels and managed_channel_streams.
type Manager struct {
	db       *store.Store
	Numberer *Numberer
}

func NewManager(db *store.Store) *Manager {
	return &Manager{db: db, Numberer: NewNumberer(db)}
}

// CheckExceptionKeyword returns the first enabled keyword one of whose
// match_terms appears as a case-insensitive substring of streamName, and
// its configured routing behavior. Returns ("", "") if nothing matches.
func CheckExceptionKeyword(streamName string, keywords []domain.ExceptionKeyword) (string, domain.ExceptionBehavior) {
	lower := strings.ToLower(streamName)
	for _, kw := range keywords {
		if !kw.Enabled {
			continue
		}
		for _, term := range kw.MatchTerms {
			if term == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(term)) {
				return kw.Label, kw.Behavior
			}
		}
	}
	return "", ""
}

// UpsertParams describes one channel a matched event should own.
type UpsertParams struct {
	GroupID           int64
	EventID           string
	EventProvider     string
	ChannelName       string
	TVGID             string
	LogoURL           string
	HomeTeam          string
	AwayTeam          string
	EventDate         time.Time
	League            string
	Sport             string
	Venue             string
	Broadcasts        []string
	ExceptionKeyword  *string
	ScheduledDeleteAt *time.Time
}

// FindChannel looks up the active (non-deleted) channel for
// (groupID, eventID, eventProvider, exceptionKeyword). exceptionKeyword
// nil matches the main (non-keyword-routed) channel.
func (m *Manager) FindChannel(ctx context.Context, groupID int64, eventID, eventProvider string, exceptionKeyword *string) (*domain.ManagedChannel, error) {
	keyword := ""
	if exceptionKeyword != nil {
		keyword = *exceptionKeyword
	}
	row := m.db.DB.QueryRowContext(ctx, `SELECT id, group_id, event_id, event_provider, tvg_id, channel_name,
		channel_number, logo_url, downstream_channel_id, channel_group_id, primary_stream_id,
		exception_keyword, home_team, away_team, event_date, league, sport, venue, broadcasts,
		scheduled_delete_at, created_at, deleted_at, delete_reason, sync_status
		FROM managed_channels
		WHERE group_id = ? AND event_id = ? AND event_provider = ? AND COALESCE(exception_keyword, '') = ? AND deleted_at IS NULL`,
		groupID, eventID, eventProvider, keyword)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

func scanChannel(row *sql.Row) (*domain.ManagedChannel, error) {
	var c domain.ManagedChannel
	var logoURL, broadcasts sql.NullString
	var downstreamID, channelGroupID, primaryStreamID sql.NullInt64
	var exceptionKeyword, deleteReason, scheduledDeleteAt, deletedAt sql.NullString
	var eventDate, createdAt string

	err := row.Scan(&c.ID, &c.GroupID, &c.EventID, &c.EventProvider, &c.TVGID, &c.ChannelName,
		&c.ChannelNumber, &logoURL, &downstreamID, &channelGroupID, &primaryStreamID,
		&exceptionKeyword, &c.HomeTeam, &c.AwayTeam, &eventDate, &c.League, &c.Sport, &c.Venue, &broadcasts,
		&scheduledDeleteAt, &createdAt, &deletedAt, &deleteReason, &c.SyncStatus)
	if err != nil {
		return nil, err
	}

	c.LogoURL = logoURL.String
	if downstreamID.Valid {
		c.DownstreamChannelID = &downstreamID.Int64
	}
	if channelGroupID.Valid {
		c.ChannelGroupID = &channelGroupID.Int64
	}
	if primaryStreamID.Valid {
		c.PrimaryStreamID = &primaryStreamID.Int64
	}
	if exceptionKeyword.Valid {
		c.ExceptionKeyword = &exceptionKeyword.String
	}
	c.DeleteReason = deleteReason.String
	if broadcasts.Valid && broadcasts.String != "" {
		_ = json.Unmarshal([]byte(broadcasts.String), &c.Broadcasts)
	}
	if eventDate != "" {
		c.EventDate, _ = time.Parse(time.RFC3339, eventDate)
	}
	if createdAt != "" {
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	}
	if scheduledDeleteAt.Valid && scheduledDeleteAt.String != "" {
		t, _ := time.Parse(time.RFC3339, scheduledDeleteAt.String)
		c.ScheduledDeleteAt = &t
	}
	if deletedAt.Valid && deletedAt.String != "" {
		t, _ := time.Parse(time.RFC3339, deletedAt.String)
		c.DeletedAt = &t
	}
	return &c, nil
}

// Upsert creates a channel for params if none exists, assigning the
// next available channel number from the group's numbering policy; an
// existing channel's display fields are refreshed in place (its number
// is never changed here — renumbering is ValidateInRange/ReassignOutOfRange's job).
// Returns the channel and whether it was newly created.
func (m *Manager) Upsert(ctx context.Context, p UpsertParams) (*domain.ManagedChannel, bool, error) {
	existing, err := m.FindChannel(ctx, p.GroupID, p.EventID, p.EventProvider, p.ExceptionKeyword)
	if err != nil {
		return nil, false, err
	}

	broadcastsJSON, _ := json.Marshal(p.Broadcasts)
	var scheduledDeleteAt interface{}
	if p.ScheduledDeleteAt != nil {
		scheduledDeleteAt = p.ScheduledDeleteAt.UTC().Format(time.RFC3339)
	}

	if existing != nil {
		_, err := m.db.DB.ExecContext(ctx, `UPDATE managed_channels SET channel_name = ?, tvg_id = ?, logo_url = ?,
			home_team = ?, away_team = ?, event_date = ?, league = ?, sport = ?, venue = ?, broadcasts = ?,
			scheduled_delete_at = ?
			WHERE id = ?`,
			p.ChannelName, p.TVGID, p.LogoURL, p.HomeTeam, p.AwayTeam, p.EventDate.UTC().Format(time.RFC3339),
			p.League, p.Sport, p.Venue, string(broadcastsJSON), scheduledDeleteAt, existing.ID)
		if err != nil {
			return nil, false, fmt.Errorf("update channel %d: %w", existing.ID, err)
		}
		existing.ChannelName, existing.TVGID, existing.LogoURL = p.ChannelName, p.TVGID, p.LogoURL
		existing.HomeTeam, existing.AwayTeam, existing.EventDate = p.HomeTeam, p.AwayTeam, p.EventDate
		existing.League, existing.Sport, existing.Venue, existing.Broadcasts = p.League, p.Sport, p.Venue, p.Broadcasts
		existing.ScheduledDeleteAt = p.ScheduledDeleteAt
		return existing, false, nil
	}

	number, err := m.Numberer.NextChannelNumber(ctx, p.GroupID, true)
	if err != nil {
		return nil, false, err
	}
	if number == 0 {
		return nil, false, fmt.Errorf("no channel number available for group %d", p.GroupID)
	}

	var exceptionKeyword interface{}
	if p.ExceptionKeyword != nil {
		exceptionKeyword = *p.ExceptionKeyword
	}

	now := time.Now().UTC()
	res, err := m.db.DB.ExecContext(ctx, `INSERT INTO managed_channels
		(group_id, event_id, event_provider, tvg_id, channel_name, channel_number, logo_url,
		 exception_keyword, home_team, away_team, event_date, league, sport, venue, broadcasts,
		 scheduled_delete_at, created_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
		p.GroupID, p.EventID, p.EventProvider, p.TVGID, p.ChannelName, number, p.LogoURL,
		exceptionKeyword, p.HomeTeam, p.AwayTeam, p.EventDate.UTC().Format(time.RFC3339), p.League, p.Sport, p.Venue,
		string(broadcastsJSON), scheduledDeleteAt, now.Format(time.RFC3339))
	if err != nil {
		return nil, false, fmt.Errorf("insert channel for event %s: %w", p.EventID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}

	ch := &domain.ManagedChannel{
		ID: id, GroupID: p.GroupID, EventID: p.EventID, EventProvider: p.EventProvider,
		TVGID: p.TVGID, ChannelName: p.ChannelName, ChannelNumber: number, LogoURL: p.LogoURL,
		ExceptionKeyword: p.ExceptionKeyword, HomeTeam: p.HomeTeam, AwayTeam: p.AwayTeam,
		EventDate: p.EventDate, League: p.League, Sport: p.Sport, Venue: p.Venue, Broadcasts: p.Broadcasts,
		ScheduledDeleteAt: p.ScheduledDeleteAt, CreatedAt: now, SyncStatus: "pending",
	}
	if err := m.LogHistory(ctx, id, "created", "matching_run", fmt.Sprintf("created channel %q for event %s", p.ChannelName, p.EventID)); err != nil {
		log.Printf("[CHANNELMGR] history log failed for channel %d: %v", id, err)
	}
	return ch, true, nil
}

// SoftDelete marks a channel deleted without removing its row, so
// history and audit queries keep working afterward.
func (m *Manager) SoftDelete(ctx context.Context, channelID int64, reason string) error {
	_, err := m.db.DB.ExecContext(ctx, `UPDATE managed_channels SET deleted_at = ?, delete_reason = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), reason, channelID)
	if err != nil {
		return fmt.Errorf("soft-delete channel %d: %w", channelID, err)
	}
	return m.LogHistory(ctx, channelID, "deleted", "lifecycle", reason)
}

// StreamExistsOnChannel reports whether downstreamStreamID is already
// (actively) attached to channelID.
func (m *Manager) StreamExistsOnChannel(ctx context.Context, channelID, downstreamStreamID int64) (bool, error) {
	var n int
	err := m.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM managed_channel_streams
		WHERE managed_channel_id = ? AND downstream_stream_id = ? AND removed_at IS NULL`,
		channelID, downstreamStreamID).Scan(&n)
	return n > 0, err
}

// NextStreamPriority returns a monotonically increasing placeholder
// priority for a newly attached stream; C11 reorders definitively
// after all matching for a run completes.
func (m *Manager) NextStreamPriority(ctx context.Context, channelID int64) (int, error) {
	var max sql.NullInt64
	err := m.db.DB.QueryRowContext(ctx, `SELECT MAX(priority) FROM managed_channel_streams WHERE managed_channel_id = ?`, channelID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

// AddStreamParams describes one stream being attached to a channel.
type AddStreamParams struct {
	ManagedChannelID   int64
	DownstreamStreamID int64
	StreamName         string
	Priority           int
	SourceGroupID      int64
	SourceGroupType    domain.SourceGroupType
	M3UAccountID       int64
	M3UAccountName     string
	ExceptionKeyword   *string
}

// AddStreamToChannel inserts a new managed_channel_streams row.
func (m *Manager) AddStreamToChannel(ctx context.Context, p AddStreamParams) (domain.ManagedChannelStream, error) {
	var exceptionKeyword interface{}
	if p.ExceptionKeyword != nil {
		exceptionKeyword = *p.ExceptionKeyword
	}
	now := time.Now().UTC()
	res, err := m.db.DB.ExecContext(ctx, `INSERT INTO managed_channel_streams
		(managed_channel_id, downstream_stream_id, stream_name, priority, source_group_id,
		 source_group_type, m3u_account_id, m3u_account_name, exception_keyword, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ManagedChannelID, p.DownstreamStreamID, p.StreamName, p.Priority, p.SourceGroupID,
		string(p.SourceGroupType), p.M3UAccountID, p.M3UAccountName, exceptionKeyword, now.Format(time.RFC3339))
	if err != nil {
		return domain.ManagedChannelStream{}, fmt.Errorf("attach stream %q: %w", p.StreamName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ManagedChannelStream{}, err
	}
	return domain.ManagedChannelStream{
		ID: id, ManagedChannelID: p.ManagedChannelID, DownstreamStreamID: p.DownstreamStreamID,
		StreamName: p.StreamName, Priority: p.Priority, SourceGroupID: p.SourceGroupID,
		SourceGroupType: p.SourceGroupType, M3UAccountID: p.M3UAccountID, M3UAccountName: p.M3UAccountName,
		ExceptionKeyword: p.ExceptionKeyword, AddedAt: now,
	}, nil
}

// LogHistory appends an audit row for a channel change.
func (m *Manager) LogHistory(ctx context.Context, channelID int64, changeType, changeSource, notes string) error {
	_, err := m.db.DB.ExecContext(ctx, `INSERT INTO managed_channel_history
		(managed_channel_id, change_type, change_source, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		channelID, changeType, changeSource, notes, time.Now().UTC().Format(time.RFC3339))
	return err
}

// MatchedChildStream is one child-group stream routed to its parent's
// existing channel for the same event.
type MatchedChildStream struct {
	DownstreamStreamID int64
	StreamName         string
	M3UAccountID       int64
	M3UAccountName     string
	EventID            string
	EventProvider      string
}

// ChildProcessResult mirrors ChildProcessResult.to_dict()'s summary
// counters, without the Python dict-of-dicts shape.
type ChildProcessResult struct {
	Added    []string
	Skipped  []string
	Existing []string
	Errors   []string
}

// ProcessChildStreams attaches matchedStreams to the parent group's
// existing channels for their events. Child groups never create
// channels of their own — a stream is skipped (not errored) when the
// parent hasn't created a channel for that event yet.
func (m *Manager) ProcessChildStreams(ctx context.Context, childGroupID int64, childGroupName string, parentGroupID int64, matchedStreams []MatchedChildStream, keywords []domain.ExceptionKeyword) ChildProcessResult {
	var result ChildProcessResult

	for _, ms := range matchedStreams {
		matchedKeyword, behavior := CheckExceptionKeyword(ms.StreamName, keywords)
		if behavior == domain.BehaviorIgnore {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: exception keyword %q set to ignore", ms.StreamName, matchedKeyword))
			continue
		}

		var keywordPtr *string
		if matchedKeyword != "" {
			keywordPtr = &matchedKeyword
		}

		parent, err := m.FindChannel(ctx, parentGroupID, ms.EventID, ms.EventProvider, keywordPtr)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ms.StreamName, err))
			continue
		}
		if parent == nil && keywordPtr != nil {
			// Fall back to the main channel when no keyword-specific
			// channel exists yet.
			parent, err = m.FindChannel(ctx, parentGroupID, ms.EventID, ms.EventProvider, nil)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ms.StreamName, err))
				continue
			}
			if parent != nil {
				log.Printf("[CHANNELMGR] keyword channel not found for %q, using main for event %s", matchedKeyword, ms.EventID)
			}
		}
		if parent == nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: no parent channel for event %s", ms.StreamName, ms.EventID))
			continue
		}

		exists, err := m.StreamExistsOnChannel(ctx, parent.ID, ms.DownstreamStreamID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ms.StreamName, err))
			continue
		}
		if exists {
			result.Existing = append(result.Existing, fmt.Sprintf("%s already on channel %q", ms.StreamName, parent.ChannelName))
			continue
		}

		priority, err := m.NextStreamPriority(ctx, parent.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ms.StreamName, err))
			continue
		}

		if _, err := m.AddStreamToChannel(ctx, AddStreamParams{
			ManagedChannelID: parent.ID, DownstreamStreamID: ms.DownstreamStreamID, StreamName: ms.StreamName,
			Priority: priority, SourceGroupID: childGroupID, SourceGroupType: domain.SourceChild,
			M3UAccountID: ms.M3UAccountID, M3UAccountName: ms.M3UAccountName, ExceptionKeyword: keywordPtr,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ms.StreamName, err))
			continue
		}

		if err := m.LogHistory(ctx, parent.ID, "stream_added", "epg_generation",
			fmt.Sprintf("added stream %q from child group %q", ms.StreamName, childGroupName)); err != nil {
			log.Printf("[CHANNELMGR] history log failed for channel %d: %v", parent.ID, err)
		}

		result.Added = append(result.Added, fmt.Sprintf("%s -> %s", ms.StreamName, parent.ChannelName))
	}

	log.Printf("[CHANNELMGR] %s: added=%d skipped=%d existing=%d errors=%d",
		childGroupName, len(result.Added), len(result.Skipped), len(result.Existing), len(result.Errors))
	return result
}
