package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/channelmgr"
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

func insertGroup(t *testing.T, db *store.Store) int64 {
	t.Helper()
	res, err := db.DB.Exec(`INSERT INTO event_epg_groups (name, channel_assignment_mode, enabled) VALUES ('NFL', 'manual', 1)`)
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func insertChannel(t *testing.T, db *store.Store, groupID int64, eventID string, number int, tvgID string, downstreamID *int64, createdAt time.Time) int64 {
	t.Helper()
	res, err := db.DB.Exec(`INSERT INTO managed_channels
		(group_id, event_id, event_provider, tvg_id, channel_name, channel_number, downstream_channel_id, created_at)
		VALUES (?, ?, 'espn', ?, 'Test Channel', ?, ?, ?)`,
		groupID, eventID, tvgID, number, downstreamID, createdAt.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("insert channel: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

type fakeDownstream struct {
	channels map[int64]string
}

func (f *fakeDownstream) ListChannelIDs(ctx context.Context) (map[int64]string, error) {
	return f.channels, nil
}

func TestFindDuplicatesKeepsOldest(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)
	t0 := time.Now()

	oldID := insertChannel(t, db, groupID, "123", 101, "teamarr-1", nil, t0)
	newID := insertChannel(t, db, groupID, "123", 102, "teamarr-2", nil, t0.Add(time.Minute))

	mgr := channelmgr.NewManager(db)
	r := NewReconciler(db, mgr, nil, Options{AutoFixDuplicates: true})

	result, err := r.Reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Summary[IssueDuplicate] != 1 {
		t.Fatalf("expected 1 duplicate issue, got %+v", result.Summary)
	}
	if result.Issues[0].ManagedChannelID != newID {
		t.Errorf("expected the newer channel %d flagged, got %d", newID, result.Issues[0].ManagedChannelID)
	}

	var deletedAt *string
	if err := db.DB.QueryRow(`SELECT deleted_at FROM managed_channels WHERE id = ?`, newID).Scan(&deletedAt); err != nil {
		t.Fatalf("query: %v", err)
	}
	if deletedAt == nil {
		t.Errorf("expected duplicate channel %d soft-deleted", newID)
	}

	var oldDeletedAt *string
	if err := db.DB.QueryRow(`SELECT deleted_at FROM managed_channels WHERE id = ?`, oldID).Scan(&oldDeletedAt); err != nil {
		t.Fatalf("query: %v", err)
	}
	if oldDeletedAt != nil {
		t.Errorf("expected oldest channel %d kept", oldID)
	}
}

func TestFindOutOfRangeReassigns(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)
	channelID := insertChannel(t, db, groupID, "999", 5000, "teamarr-1", nil, time.Now())

	mgr := channelmgr.NewManager(db)
	r := NewReconciler(db, mgr, nil, Options{})

	result, err := r.Reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Summary[IssueOutOfRange] != 1 {
		t.Fatalf("expected 1 out-of-range issue, got %+v", result.Summary)
	}

	var number int
	if err := db.DB.QueryRow(`SELECT channel_number FROM managed_channels WHERE id = ?`, channelID).Scan(&number); err != nil {
		t.Fatalf("query: %v", err)
	}
	if number == 5000 {
		t.Errorf("expected channel %d reassigned away from 5000, still at %d", channelID, number)
	}
}

func TestDiffDownstreamDetectsOrphanEngine(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)
	channelID := insertChannel(t, db, groupID, "123", 101, "teamarr-1", nil, time.Now())

	mgr := channelmgr.NewManager(db)
	ds := &fakeDownstream{channels: map[int64]string{}}
	r := NewReconciler(db, mgr, ds, Options{AutoFixOrphanEngine: true})

	result, err := r.Reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Summary[IssueOrphanEngine] != 1 {
		t.Fatalf("expected 1 orphan-engine issue, got %+v", result.Summary)
	}

	var status string
	if err := db.DB.QueryRow(`SELECT sync_status FROM managed_channels WHERE id = ?`, channelID).Scan(&status); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "pending" {
		t.Errorf("expected sync_status=pending after auto-fix, got %q", status)
	}
}

func TestDiffDownstreamDetectsOrphanDownstream(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)
	dsID := int64(555)
	insertChannel(t, db, groupID, "123", 101, "teamarr-1", &dsID, time.Now())

	mgr := channelmgr.NewManager(db)
	ds := &fakeDownstream{channels: map[int64]string{555: "teamarr-1", 777: "teamarr-orphan"}}
	r := NewReconciler(db, mgr, ds, Options{TVGIDPrefix: "teamarr-"})

	result, err := r.Reconcile(context.Background(), false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Summary[IssueOrphanDownstream] != 1 {
		t.Fatalf("expected 1 orphan-downstream issue, got %+v", result.Summary)
	}
}
