package fingerprint

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

func TestSetGetRoundTrip(t *testing.T) {
	c := NewCache(openTestStore(t))
	target := time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC)
	entry := domain.FingerprintCacheEntry{
		GroupID:     1,
		Fingerprint: "lions packers",
		EventID:     "123",
		League:      "nfl",
		Provider:    "espn",
		Snapshot:    domain.Event{EventID: "123", League: "nfl", Provider: "espn", StartTime: target, Name: "Lions @ Packers"},
		MatchMethod: domain.MethodFuzzy,
		Generation:  3,
	}
	if err := c.Set(context.Background(), entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(context.Background(), 1, "lions packers", target)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.EventID != "123" || got.MatchMethod != domain.MethodFuzzy {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestGetInvalidatesOnDateMismatch(t *testing.T) {
	c := NewCache(openTestStore(t))
	original := time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC)
	entry := domain.FingerprintCacheEntry{
		GroupID: 1, Fingerprint: "lions packers", EventID: "123",
		Snapshot: domain.Event{EventID: "123", StartTime: original},
	}
	if err := c.Set(context.Background(), entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	laterWeek := original.AddDate(0, 0, 7)
	_, ok, err := c.Get(context.Background(), 1, "lions packers", laterWeek)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Errorf("expected cache miss when reconstructed event date disagrees with target date")
	}
}

func TestEvictStale(t *testing.T) {
	c := NewCache(openTestStore(t))
	for gen := int64(1); gen <= 5; gen++ {
		entry := domain.FingerprintCacheEntry{
			GroupID: 1, Fingerprint: "stream-" + time.Unix(gen, 0).Format("150405"),
			EventID: "e", Generation: gen,
		}
		if err := c.Set(context.Background(), entry); err != nil {
			t.Fatalf("set gen %d: %v", gen, err)
		}
	}
	removed, err := c.EvictStale(context.Background(), 5)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	// Generations 1,2,3 are <= 5-2=3, so three rows are removed.
	if removed != 3 {
		t.Errorf("expected 3 rows evicted, got %d", removed)
	}
}
