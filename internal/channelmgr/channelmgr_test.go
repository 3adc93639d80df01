package channelmgr

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertGroup(t *testing.T, db *store.Store, name string, mode domain.ChannelAssignmentMode, channelStart *int, sortOrder, totalStreamCount int, parentID *int64) int64 {
	t.Helper()
	res, err := db.DB.Exec(`INSERT INTO event_epg_groups
		(name, channel_assignment_mode, channel_start_number, sort_order, total_stream_count, parent_group_id, enabled)
		VALUES (?, ?, ?, ?, ?, ?, 1)`, name, string(mode), channelStart, sortOrder, totalStreamCount, parentID)
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestNextChannelNumberManualAutoAssigns(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db, "NFL", domain.AssignManual, nil, 0, 0, nil)

	n := NewNumberer(db)
	num, err := n.NextChannelNumber(context.Background(), groupID, true)
	if err != nil {
		t.Fatalf("NextChannelNumber: %v", err)
	}
	if num != 101 {
		t.Errorf("expected first manual group to auto-assign 101, got %d", num)
	}
}

func TestNextChannelNumberManualSkipsUsed(t *testing.T) {
	db := openTestStore(t)
	start := 200
	groupID := insertGroup(t, db, "NBA", domain.AssignManual, &start, 0, 0, nil)

	_, err := db.DB.Exec(`INSERT INTO managed_channels (group_id, event_id, event_provider, tvg_id, channel_name, channel_number, created_at)
		VALUES (?, 'e1', 'espn', '', 'NBA Game', 200, ?)`, groupID, time.Now().Format(time.RFC3339))
	if err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	n := NewNumberer(db)
	num, err := n.NextChannelNumber(context.Background(), groupID, true)
	if err != nil {
		t.Fatalf("NextChannelNumber: %v", err)
	}
	if num != 201 {
		t.Errorf("expected next free number 201, got %d", num)
	}
}

func TestNextChannelNumberAutoPacksBySortOrder(t *testing.T) {
	db := openTestStore(t)
	g1 := insertGroup(t, db, "Group1", domain.AssignAuto, nil, 1, 16, nil)
	g2 := insertGroup(t, db, "Group2", domain.AssignAuto, nil, 2, 20, nil)

	n := NewNumberer(db)
	num1, err := n.NextChannelNumber(context.Background(), g1, true)
	if err != nil {
		t.Fatalf("group1: %v", err)
	}
	if num1 != 101 {
		t.Errorf("group1 expected 101, got %d", num1)
	}

	num2, err := n.NextChannelNumber(context.Background(), g2, true)
	if err != nil {
		t.Fatalf("group2: %v", err)
	}
	// group1 needs ceil(16/10)=2 blocks of 10 => group2 starts at 101+20=121
	if num2 != 121 {
		t.Errorf("group2 expected 121, got %d", num2)
	}
}

func TestUpsertCreatesThenUpdatesInPlace(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db, "NFL", domain.AssignManual, nil, 0, 0, nil)
	mgr := NewManager(db)

	params := UpsertParams{
		GroupID: groupID, EventID: "123", EventProvider: "espn", ChannelName: "Lions @ Packers",
		HomeTeam: "Packers", AwayTeam: "Lions", EventDate: time.Now(), League: "nfl", Sport: "football",
	}
	ch, created, err := mgr.Upsert(context.Background(), params)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created || ch.ChannelNumber != 101 {
		t.Fatalf("expected new channel at 101, got %+v created=%v", ch, created)
	}

	params.ChannelName = "Lions @ Packers (Live)"
	ch2, created2, err := mgr.Upsert(context.Background(), params)
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if created2 {
		t.Errorf("expected second upsert to update in place, not create")
	}
	if ch2.ID != ch.ID || ch2.ChannelNumber != ch.ChannelNumber {
		t.Errorf("expected same channel identity, got %+v vs %+v", ch2, ch)
	}
	if ch2.ChannelName != "Lions @ Packers (Live)" {
		t.Errorf("expected refreshed name, got %q", ch2.ChannelName)
	}
}

func TestProcessChildStreamsSkipsWithoutParentChannel(t *testing.T) {
	db := openTestStore(t)
	parentGroupID := insertGroup(t, db, "Parent", domain.AssignManual, nil, 0, 0, nil)
	childID := int64(99)
	mgr := NewManager(db)

	result := mgr.ProcessChildStreams(context.Background(), childID, "Child", parentGroupID,
		[]MatchedChildStream{{DownstreamStreamID: 1, StreamName: "Backup Feed", EventID: "123", EventProvider: "espn"}},
		nil)

	if len(result.Skipped) != 1 || len(result.Added) != 0 {
		t.Fatalf("expected skip with no parent channel, got %+v", result)
	}
}

func TestProcessChildStreamsAddsToExistingParentChannel(t *testing.T) {
	db := openTestStore(t)
	parentGroupID := insertGroup(t, db, "Parent", domain.AssignManual, nil, 0, 0, nil)
	mgr := NewManager(db)

	_, _, err := mgr.Upsert(context.Background(), UpsertParams{
		GroupID: parentGroupID, EventID: "123", EventProvider: "espn", ChannelName: "Lions @ Packers",
		HomeTeam: "Packers", AwayTeam: "Lions", EventDate: time.Now(), League: "nfl", Sport: "football",
	})
	if err != nil {
		t.Fatalf("seed parent channel: %v", err)
	}

	result := mgr.ProcessChildStreams(context.Background(), 99, "Child", parentGroupID,
		[]MatchedChildStream{{DownstreamStreamID: 1, StreamName: "Backup Feed", EventID: "123", EventProvider: "espn"}},
		nil)

	if len(result.Added) != 1 {
		t.Fatalf("expected stream added to parent channel, got %+v", result)
	}

	// Running again should report it as already existing, not added twice.
	result2 := mgr.ProcessChildStreams(context.Background(), 99, "Child", parentGroupID,
		[]MatchedChildStream{{DownstreamStreamID: 1, StreamName: "Backup Feed", EventID: "123", EventProvider: "espn"}},
		nil)
	if len(result2.Existing) != 1 || len(result2.Added) != 0 {
		t.Fatalf("expected idempotent re-run to report existing, got %+v", result2)
	}
}

func TestProcessChildStreamsIgnoreKeywordSkips(t *testing.T) {
	db := openTestStore(t)
	parentGroupID := insertGroup(t, db, "Parent", domain.AssignManual, nil, 0, 0, nil)
	mgr := NewManager(db)

	keywords := []domain.ExceptionKeyword{{Label: "Radio", MatchTerms: []string{"radio"}, Behavior: domain.BehaviorIgnore, Enabled: true}}
	result := mgr.ProcessChildStreams(context.Background(), 99, "Child", parentGroupID,
		[]MatchedChildStream{{DownstreamStreamID: 1, StreamName: "Lions Radio Feed", EventID: "123", EventProvider: "espn"}},
		keywords)

	if len(result.Skipped) != 1 || len(result.Added) != 0 {
		t.Fatalf("expected ignore-keyword stream skipped, got %+v", result)
	}
}
