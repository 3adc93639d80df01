package store

import "testing"

func TestOpenCreatesSchema(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	tables := []string{
		"settings", "leagues", "sports", "team_cache", "league_cache",
		"cache_meta", "event_epg_groups", "regular_tv_groups",
		"managed_channels", "managed_channel_streams", "managed_channel_history",
		"consolidation_exception_keywords", "detection_keywords",
		"stream_match_cache", "channel_sort_priorities", "processing_generation",
	}
	for _, tbl := range tables {
		var name string
		row := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl)
		if err := row.Scan(&name); err != nil {
			t.Errorf("table %s missing: %v", tbl, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestActiveChannelUniqueness(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_, err = s.DB.Exec(`INSERT INTO event_epg_groups (id, name) VALUES (1, 'nfl')`)
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}
	insertChan := `INSERT INTO managed_channels
		(group_id, event_id, event_provider, channel_name, channel_number, created_at)
		VALUES (1, 'e1', 'espn', 'Lions @ Packers', 100, '2025-01-01T00:00:00Z')`
	if _, err := s.DB.Exec(insertChan); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := s.DB.Exec(insertChan); err == nil {
		t.Error("expected unique constraint violation on duplicate active channel")
	}
}
