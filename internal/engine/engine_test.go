package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/config"
	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/provider"
	"github.com/nreeb/teamarr/internal/store"
	"github.com/nreeb/teamarr/internal/streamfilter"
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

func testConfig() *config.Config {
	return &config.Config{DBPath: "test.db", XMLTVPath: "guide.xml"}
}

func TestLoadSettingsAppliesDefaultsThenOverrides(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	s, err := loadSettings(ctx, db, testConfig())
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.ChannelRangeStart != 101 {
		t.Errorf("expected default channel range start 101, got %d", s.ChannelRangeStart)
	}
	if s.SchedulerIntervalMinutes != 15 {
		t.Errorf("expected default scheduler interval 15, got %d", s.SchedulerIntervalMinutes)
	}
	if s.DurationDefault != 3*time.Hour {
		t.Errorf("expected default duration 3h, got %v", s.DurationDefault)
	}
	if s.SportDurations["mma"] != 5*time.Hour {
		t.Errorf("expected default mma duration 5h, got %v", s.SportDurations["mma"])
	}

	if err := SaveSetting(ctx, db, "channel_range_start", "200"); err != nil {
		t.Fatalf("SaveSetting: %v", err)
	}
	if err := SaveSetting(ctx, db, "durations_mma", "240"); err != nil {
		t.Fatalf("SaveSetting: %v", err)
	}
	if err := SaveSetting(ctx, db, "epg_timezone", "America/New_York"); err != nil {
		t.Fatalf("SaveSetting: %v", err)
	}

	s2, err := loadSettings(ctx, db, testConfig())
	if err != nil {
		t.Fatalf("loadSettings after overrides: %v", err)
	}
	if s2.ChannelRangeStart != 200 {
		t.Errorf("expected overridden channel range start 200, got %d", s2.ChannelRangeStart)
	}
	if s2.SportDurations["mma"] != 4*time.Hour {
		t.Errorf("expected overridden mma duration 4h, got %v", s2.SportDurations["mma"])
	}
	if s2.Location().String() != "America/New_York" {
		t.Errorf("expected America/New_York location, got %v", s2.Location())
	}
}

func TestLoadSettingsBadTimezoneFallsBackToUTC(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	if err := SaveSetting(ctx, db, "epg_timezone", "Not/A_Zone"); err != nil {
		t.Fatalf("SaveSetting: %v", err)
	}
	s, err := loadSettings(ctx, db, testConfig())
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Location() != time.UTC {
		t.Errorf("expected UTC fallback for bad zone name, got %v", s.Location())
	}
}

func TestLoadPatternsFallsBackToDefaultsWhenTableEmpty(t *testing.T) {
	db := openTestStore(t)
	p, err := loadPatterns(context.Background(), db)
	if err != nil {
		t.Fatalf("loadPatterns: %v", err)
	}
	if len(p.Placeholder) == 0 || len(p.CombatKeyword) == 0 {
		t.Errorf("expected default patterns when detection_keywords is empty, got %+v", p)
	}
}

func TestLoadPatternsOverridesOnlyPresentCategories(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	defaults, err := loadPatterns(ctx, db)
	if err != nil {
		t.Fatalf("loadPatterns defaults: %v", err)
	}

	_, err = db.DB.Exec(`INSERT INTO detection_keywords (category, pattern, value, enabled)
		VALUES ('placeholder', 'TBD', '', 1)`)
	if err != nil {
		t.Fatalf("seed detection_keywords: %v", err)
	}

	p, err := loadPatterns(ctx, db)
	if err != nil {
		t.Fatalf("loadPatterns: %v", err)
	}
	if len(p.Placeholder) != 1 {
		t.Errorf("expected exactly one overridden placeholder pattern, got %d", len(p.Placeholder))
	}
	if len(p.CombatKeyword) != len(defaults.CombatKeyword) {
		t.Errorf("expected untouched combat keyword category to remain at default count, got %d want %d",
			len(p.CombatKeyword), len(defaults.CombatKeyword))
	}
}

func TestLoadPatternsSkipsInvalidRegexButKeepsRest(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	_, err := db.DB.Exec(`INSERT INTO detection_keywords (category, pattern, value, enabled) VALUES
		('placeholder', '(unclosed', '', 1),
		('placeholder', 'TBD', '', 1)`)
	if err != nil {
		t.Fatalf("seed detection_keywords: %v", err)
	}

	p, err := loadPatterns(ctx, db)
	if err != nil {
		t.Fatalf("loadPatterns: %v", err)
	}
	if len(p.Placeholder) != 1 {
		t.Errorf("expected the invalid pattern to be skipped and the valid one kept, got %d patterns", len(p.Placeholder))
	}
}

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	db := openTestStore(t)
	e, err := New(context.Background(), testConfig(), db, provider.NewRegistry(), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, db
}

func TestNewBuildsEngineWithNilDownstreamAdapters(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.Reconciler != nil {
		t.Errorf("expected a nil reconciler when no downstream adapter is supplied")
	}
	if e.Scheduler == nil {
		t.Errorf("expected a non-nil scheduler")
	}
}

func TestRefreshM3UNoopsWithoutAdapter(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.refreshM3U(context.Background()); err != nil {
		t.Errorf("expected refreshM3U to no-op without an m3u adapter, got %v", err)
	}
}

func TestRunEPGGenerationNoopsWithoutStreamSource(t *testing.T) {
	e, db := newTestEngine(t)
	_, err := db.DB.Exec(`INSERT INTO event_epg_groups (name, channel_assignment_mode, sort_order, enabled)
		VALUES ('NFL', 'auto', 0, 1)`)
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := e.RunEPGGeneration(context.Background(), 1); err != nil {
		t.Errorf("expected RunEPGGeneration to tolerate a nil stream source, got %v", err)
	}
}

func TestRunScheduledDeletionsDeletesDueChannels(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	res, err := db.DB.Exec(`INSERT INTO managed_channels
		(group_id, event_id, event_provider, tvg_id, channel_name, channel_number, created_at, scheduled_delete_at)
		VALUES (1, 'due', 'espn', '', 'Due Channel', 101, ?, ?)`, past, past)
	if err != nil {
		t.Fatalf("seed due channel: %v", err)
	}
	dueID, _ := res.LastInsertId()

	if _, err := db.DB.Exec(`INSERT INTO managed_channels
		(group_id, event_id, event_provider, tvg_id, channel_name, channel_number, created_at, scheduled_delete_at)
		VALUES (1, 'future', 'espn', '', 'Future Channel', 102, ?, ?)`, past, future); err != nil {
		t.Fatalf("seed future channel: %v", err)
	}

	if err := e.RunScheduledDeletions(ctx); err != nil {
		t.Fatalf("RunScheduledDeletions: %v", err)
	}

	var deletedAt *string
	if err := db.DB.QueryRow(`SELECT deleted_at FROM managed_channels WHERE id = ?`, dueID).Scan(&deletedAt); err != nil {
		t.Fatalf("query due channel: %v", err)
	}
	if deletedAt == nil {
		t.Errorf("expected the due channel to be soft-deleted")
	}

	var futureDeletedAt *string
	if err := db.DB.QueryRow(`SELECT deleted_at FROM managed_channels WHERE channel_name = 'Future Channel'`).Scan(&futureDeletedAt); err != nil {
		t.Fatalf("query future channel: %v", err)
	}
	if futureDeletedAt != nil {
		t.Errorf("expected the not-yet-due channel to remain untouched")
	}
}

func TestCleanupHistoryPrunesOldRows(t *testing.T) {
	e, db := newTestEngine(t)
	old := time.Now().UTC().AddDate(0, 0, -120).Format(time.RFC3339)
	recent := time.Now().UTC().Format(time.RFC3339)

	if _, err := db.DB.Exec(`INSERT INTO managed_channel_history (managed_channel_id, change_type, change_source, created_at)
		VALUES (1, 'created', 'test', ?), (1, 'created', 'test', ?)`, old, recent); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	if err := e.CleanupHistory(context.Background()); err != nil {
		t.Fatalf("CleanupHistory: %v", err)
	}

	var count int
	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM managed_channel_history`).Scan(&count); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly the recent row to survive pruning, got %d rows", count)
	}
}

func TestSyncRegularTVGroupCreatesAndDeletesChannels(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	res, err := db.DB.Exec(`INSERT INTO regular_tv_groups (name, m3u_account_id, m3u_group_id, enabled)
		VALUES ('Local News', 1, 1, 1)`)
	if err != nil {
		t.Fatalf("seed regular tv group: %v", err)
	}
	groupID, _ := res.LastInsertId()

	src := &fakeStreamSource{
		streams: []streamfilter.RawStream{
			{ID: 10, Name: "Channel 10", M3UAccountName: "Main"},
			{ID: 11, Name: "Channel 11", M3UAccountName: "Main"},
		},
	}
	e.streams = src

	group := domain.RegularTVGroup{ID: groupID, Name: "Local News", M3UAccountID: 1, M3UGroupID: "1", Enabled: true}
	if err := e.syncRegularTVGroup(ctx, group); err != nil {
		t.Fatalf("syncRegularTVGroup: %v", err)
	}

	var count int
	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM managed_channels WHERE group_id = ? AND deleted_at IS NULL`, groupID).Scan(&count); err != nil {
		t.Fatalf("count channels: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 passthrough channels created, got %d", count)
	}

	src.streams = src.streams[:1]
	if err := e.syncRegularTVGroup(ctx, group); err != nil {
		t.Fatalf("second syncRegularTVGroup: %v", err)
	}

	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM managed_channels WHERE group_id = ? AND deleted_at IS NULL`, groupID).Scan(&count); err != nil {
		t.Fatalf("count channels after shrink: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the disappeared stream's channel to be soft-deleted, got %d channels remaining", count)
	}
}

type fakeStreamSource struct {
	streams []streamfilter.RawStream
}

func (f *fakeStreamSource) ListRawStreams(ctx context.Context, group domain.EventEPGGroup) ([]streamfilter.RawStream, error) {
	return f.streams, nil
}
