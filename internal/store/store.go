// Package store owns the engine's single SQLite-compatible persistent
// store: schema creation, migrations-by-version, and the query helpers
// each component package builds on. No ORM — raw SQL via database/sql,
// matching internal/plex/dvr.go's idiom in the teacher repo.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current schema revision, stored in settings.schema_version.
const SchemaVersion = 1

// Store wraps the shared *sql.DB handle.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema. WAL mode is enabled so the scheduler's writer and the HTTP
// surface's readers don't block each other, matching the "short
// transactions, no cross-call locks" resource policy in spec.md §5.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers; serialize at the handle
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) migrate() error {
	if _, err := s.DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	row := s.DB.QueryRow(`SELECT value FROM settings WHERE key = 'schema_version'`)
	if err := row.Scan(&version); err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("read schema_version: %w", err)
		}
		_, err := s.DB.Exec(`INSERT INTO settings (key, value) VALUES ('schema_version', ?)`, fmt.Sprintf("%d", SchemaVersion))
		if err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leagues (
	league_code        TEXT NOT NULL,
	provider           TEXT NOT NULL,
	provider_league_id TEXT NOT NULL,
	sport              TEXT NOT NULL,
	display_name       TEXT NOT NULL,
	league_alias       TEXT,
	fallback_provider  TEXT,
	fallback_league_id TEXT,
	enabled            INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (league_code, provider)
);

CREATE TABLE IF NOT EXISTS sports (
	sport_code               TEXT PRIMARY KEY,
	display_name             TEXT NOT NULL,
	default_duration_minutes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS team_cache (
	provider        TEXT NOT NULL,
	provider_team_id TEXT NOT NULL,
	league          TEXT NOT NULL,
	name            TEXT NOT NULL,
	short_name      TEXT,
	abbreviation    TEXT,
	sport           TEXT NOT NULL,
	logo_url        TEXT,
	last_seen       TEXT,
	PRIMARY KEY (provider, provider_team_id, league)
);
CREATE INDEX IF NOT EXISTS idx_team_cache_league ON team_cache(league);

CREATE TABLE IF NOT EXISTS league_cache (
	league   TEXT NOT NULL,
	provider TEXT NOT NULL,
	sport    TEXT NOT NULL,
	PRIMARY KEY (league, provider)
);

CREATE TABLE IF NOT EXISTS cache_meta (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	last_full_refresh  TEXT,
	leagues_count      INTEGER NOT NULL DEFAULT 0,
	teams_count        INTEGER NOT NULL DEFAULT 0,
	refresh_in_progress INTEGER NOT NULL DEFAULT 0,
	last_error         TEXT
);
INSERT OR IGNORE INTO cache_meta (id, leagues_count, teams_count, refresh_in_progress) VALUES (1, 0, 0, 0);

CREATE TABLE IF NOT EXISTS teams (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	provider     TEXT NOT NULL,
	provider_team_id TEXT NOT NULL,
	league       TEXT NOT NULL,
	name         TEXT NOT NULL,
	UNIQUE(provider, provider_team_id, league)
);

CREATE TABLE IF NOT EXISTS event_epg_groups (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	name                   TEXT NOT NULL,
	m3u_account_id         INTEGER NOT NULL DEFAULT 0,
	m3u_group_id           TEXT NOT NULL DEFAULT '',
	leagues                TEXT NOT NULL DEFAULT '',
	parent_group_id        INTEGER,
	channel_assignment_mode TEXT NOT NULL DEFAULT 'auto',
	channel_start_number   INTEGER,
	total_stream_count     INTEGER NOT NULL DEFAULT 0,
	sort_order             INTEGER NOT NULL DEFAULT 0,
	overlap_handling       TEXT NOT NULL DEFAULT '',
	duplicate_mode         TEXT NOT NULL DEFAULT 'consolidate',
	include_regex          TEXT NOT NULL DEFAULT '',
	exclude_regex          TEXT NOT NULL DEFAULT '',
	team_extract_regex     TEXT NOT NULL DEFAULT '',
	skip_builtin_extractor INTEGER NOT NULL DEFAULT 0,
	enabled                INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY (parent_group_id) REFERENCES event_epg_groups(id)
);

CREATE TABLE IF NOT EXISTS regular_tv_groups (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	m3u_account_id INTEGER NOT NULL DEFAULT 0,
	m3u_group_id   TEXT NOT NULL DEFAULT '',
	enabled        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS managed_channels (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id              INTEGER NOT NULL,
	event_id              TEXT NOT NULL,
	event_provider        TEXT NOT NULL,
	tvg_id                TEXT NOT NULL DEFAULT '',
	channel_name          TEXT NOT NULL,
	channel_number        INTEGER NOT NULL,
	logo_url              TEXT,
	downstream_channel_id INTEGER,
	channel_group_id      INTEGER,
	channel_profile_ids   TEXT NOT NULL DEFAULT '',
	primary_stream_id     INTEGER,
	exception_keyword     TEXT,
	home_team             TEXT NOT NULL DEFAULT '',
	away_team             TEXT NOT NULL DEFAULT '',
	event_date            TEXT NOT NULL DEFAULT '',
	league                TEXT NOT NULL DEFAULT '',
	sport                 TEXT NOT NULL DEFAULT '',
	venue                 TEXT NOT NULL DEFAULT '',
	broadcasts            TEXT NOT NULL DEFAULT '',
	scheduled_delete_at   TEXT,
	created_at            TEXT NOT NULL,
	deleted_at            TEXT,
	delete_reason         TEXT,
	sync_status           TEXT NOT NULL DEFAULT 'pending',
	FOREIGN KEY (group_id) REFERENCES event_epg_groups(id)
);
CREATE INDEX IF NOT EXISTS idx_managed_channels_group ON managed_channels(group_id);
CREATE INDEX IF NOT EXISTS idx_managed_channels_event ON managed_channels(event_id, event_provider);
-- Soft-delete coexistence: duplicate active rows are prevented, historical
-- soft-deleted rows are left unconstrained (spec.md §9 open question).
CREATE UNIQUE INDEX IF NOT EXISTS idx_managed_channels_active_unique
	ON managed_channels(group_id, event_id, event_provider, COALESCE(exception_keyword, ''))
	WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS managed_channel_streams (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	managed_channel_id   INTEGER NOT NULL,
	downstream_stream_id INTEGER NOT NULL,
	stream_name          TEXT NOT NULL,
	priority             INTEGER NOT NULL DEFAULT 999,
	source_group_id      INTEGER NOT NULL,
	source_group_type    TEXT NOT NULL DEFAULT 'main',
	m3u_account_id       INTEGER NOT NULL DEFAULT 0,
	m3u_account_name     TEXT NOT NULL DEFAULT '',
	exception_keyword    TEXT,
	added_at             TEXT NOT NULL,
	removed_at           TEXT,
	FOREIGN KEY (managed_channel_id) REFERENCES managed_channels(id)
);
CREATE INDEX IF NOT EXISTS idx_mcs_channel ON managed_channel_streams(managed_channel_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mcs_active_unique
	ON managed_channel_streams(managed_channel_id, downstream_stream_id)
	WHERE removed_at IS NULL;

CREATE TABLE IF NOT EXISTS managed_channel_history (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	managed_channel_id INTEGER NOT NULL,
	change_type        TEXT NOT NULL,
	change_source      TEXT NOT NULL,
	notes              TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_channel ON managed_channel_history(managed_channel_id);

CREATE TABLE IF NOT EXISTS consolidation_exception_keywords (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	label       TEXT NOT NULL,
	match_terms TEXT NOT NULL,
	behavior    TEXT NOT NULL DEFAULT 'consolidate',
	enabled     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS detection_keywords (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	pattern  TEXT NOT NULL,
	value    TEXT NOT NULL DEFAULT '',
	enabled  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS stream_match_cache (
	group_id          INTEGER NOT NULL,
	fingerprint       TEXT NOT NULL,
	event_id          TEXT NOT NULL,
	league            TEXT NOT NULL,
	provider          TEXT NOT NULL,
	snapshot_json     TEXT NOT NULL,
	match_method      TEXT NOT NULL,
	generation        INTEGER NOT NULL,
	normalization_version INTEGER NOT NULL DEFAULT 1,
	last_touched      TEXT NOT NULL,
	PRIMARY KEY (group_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS channel_sort_priorities (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	type     TEXT NOT NULL,
	value    TEXT NOT NULL,
	priority INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_generation (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	generation INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO processing_generation (id, generation) VALUES (1, 0);
`
