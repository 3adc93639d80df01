// Package fingerprint implements C5 Fingerprint Cache: a SQLite-backed
// cache keyed by (group_id, fingerprint) holding enough of a matched
// Event to reconstruct it without a provider round-trip. Grounded on
// spec.md §4.4 directly; adapted from the teacher's file-based
// indexer/smoketest caches (internal/cache/path.go,
// internal/indexer/smoketest_cache.go — keyed, generation/TTL-aware
// cache-file idiom) onto the relational store spec.md §6 names
// (`stream_match_cache`), since this cache must survive process
// restarts the way the rest of the engine's state does.
package fingerprint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/store"
)

// Cache implements C5 and satisfies internal/matcher.FingerprintCache.
type Cache struct {
	DB *store.Store
}

// NewCache wires a Cache over db.
func NewCache(db *store.Store) *Cache {
	return &Cache{DB: db}
}

// Get looks up a fingerprint entry. A hit whose reconstructed event date
// disagrees with targetDate (a new occurrence of the same matchup) is
// treated as a miss for this call without deleting the row — spec.md
// §4.4's "entry is invalidated for this call... falls through to fresh
// matching."
func (c *Cache) Get(ctx context.Context, groupID int64, streamName string, targetDate time.Time) (domain.FingerprintCacheEntry, bool, error) {
	row := c.DB.DB.QueryRowContext(ctx, `
		SELECT event_id, league, provider, snapshot_json, match_method, generation, last_touched
		FROM stream_match_cache
		WHERE group_id = ? AND fingerprint = ?
	`, groupID, streamName)

	var entry domain.FingerprintCacheEntry
	var snapshotJSON, matchMethod, lastTouched string
	entry.GroupID = groupID
	entry.Fingerprint = streamName
	if err := row.Scan(&entry.EventID, &entry.League, &entry.Provider, &snapshotJSON, &matchMethod, &entry.Generation, &lastTouched); err != nil {
		if err == sql.ErrNoRows {
			return domain.FingerprintCacheEntry{}, false, nil
		}
		return domain.FingerprintCacheEntry{}, false, fmt.Errorf("fingerprint: get: %w", err)
	}
	entry.MatchMethod = domain.MatchMethod(matchMethod)
	if t, err := time.Parse(time.RFC3339, lastTouched); err == nil {
		entry.LastTouched = t
	}
	if err := json.Unmarshal([]byte(snapshotJSON), &entry.Snapshot); err != nil {
		return domain.FingerprintCacheEntry{}, false, fmt.Errorf("fingerprint: decode snapshot: %w", err)
	}

	if !sameCalendarDate(entry.Snapshot.StartTime, targetDate) {
		return domain.FingerprintCacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set upserts a fingerprint entry. Callers must pass the *original*
// match method even when this Set follows a cache-hit re-confirmation,
// so match_method always records provenance (spec.md §4.4).
func (c *Cache) Set(ctx context.Context, entry domain.FingerprintCacheEntry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("fingerprint: encode snapshot: %w", err)
	}
	lastTouched := entry.LastTouched
	if lastTouched.IsZero() {
		lastTouched = time.Now().UTC()
	}
	_, err = c.DB.DB.ExecContext(ctx, `
		INSERT INTO stream_match_cache (group_id, fingerprint, event_id, league, provider, snapshot_json, match_method, generation, last_touched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, fingerprint) DO UPDATE SET
			event_id = excluded.event_id,
			league = excluded.league,
			provider = excluded.provider,
			snapshot_json = excluded.snapshot_json,
			match_method = excluded.match_method,
			generation = excluded.generation,
			last_touched = excluded.last_touched
	`, entry.GroupID, entry.Fingerprint, entry.EventID, entry.League, entry.Provider, string(snapshot), string(entry.MatchMethod), entry.Generation, lastTouched.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("fingerprint: set: %w", err)
	}
	return nil
}

// Touch re-confirms an entry is still current as of generation, without
// altering its match data — used when a cache hit is accepted on a new
// orchestrator run so background eviction doesn't reclaim it.
func (c *Cache) Touch(ctx context.Context, groupID int64, streamFingerprint string, generation int64) error {
	_, err := c.DB.DB.ExecContext(ctx, `
		UPDATE stream_match_cache SET generation = ?, last_touched = ?
		WHERE group_id = ? AND fingerprint = ?
	`, generation, time.Now().UTC().Format(time.RFC3339), groupID, streamFingerprint)
	if err != nil {
		return fmt.Errorf("fingerprint: touch: %w", err)
	}
	return nil
}

// EvictStale deletes entries at least two generations behind
// currentGeneration — spec.md §4.4's "background cleanup removes
// entries >=2 generations old." Returns the number of rows removed.
func (c *Cache) EvictStale(ctx context.Context, currentGeneration int64) (int64, error) {
	threshold := currentGeneration - 2
	if threshold < 0 {
		return 0, nil
	}
	res, err := c.DB.DB.ExecContext(ctx, `DELETE FROM stream_match_cache WHERE generation <= ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: evict stale: %w", err)
	}
	return res.RowsAffected()
}

func sameCalendarDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
