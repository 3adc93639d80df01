package teamcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/provider"
	"github.com/nreeb/teamarr/internal/store"
)

type fakeProvider struct {
	name    string
	leagues []string
	teams   map[string][]domain.Team
}

func (f *fakeProvider) Name() string                 { return f.name }
func (f *fakeProvider) SupportsLeague(l string) bool  { return f.teams[l] != nil }
func (f *fakeProvider) GetSupportedLeagues() []string { return f.leagues }
func (f *fakeProvider) GetEvents(ctx context.Context, league string, date time.Time) ([]domain.Event, error) {
	return nil, nil
}
func (f *fakeProvider) GetEvent(ctx context.Context, id, league string) (*domain.Event, error) {
	return nil, nil
}
func (f *fakeProvider) GetTeam(ctx context.Context, id, league string) (*domain.Team, error) {
	return nil, nil
}
func (f *fakeProvider) GetLeagueTeams(ctx context.Context, league string) ([]domain.Team, error) {
	return f.teams[league], nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRefreshAndIndex(t *testing.T) {
	s := openTestStore(t)
	reg := provider.NewRegistry()
	reg.Add(&fakeProvider{
		name:    "espn",
		leagues: []string{"nfl"},
		teams: map[string][]domain.Team{
			"nfl": {
				{Provider: "espn", ProviderTeamID: "1", League: "nfl", Sport: "football", Name: "Detroit Lions", ShortName: "Lions", Abbreviation: "DET"},
				{Provider: "espn", ProviderTeamID: "2", League: "nfl", Sport: "football", Name: "Green Bay Packers", ShortName: "Packers", Abbreviation: "GB"},
			},
		},
	})

	r := NewRefresher(s, reg, "")
	r.Workers = 4
	if err := r.Refresh(context.Background(), nil); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM team_cache`).Scan(&count); err != nil {
		t.Fatalf("count teams: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 cached teams, got %d", count)
	}

	idx := NewIndex(s)
	if err := idx.Load(context.Background()); err != nil {
		t.Fatalf("load index: %v", err)
	}
	candidates, err := idx.FindCandidateLeagues(context.Background(), "Lions", "Packers", "")
	if err != nil {
		t.Fatalf("find candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].LeagueCode != "nfl" {
		t.Fatalf("expected single nfl candidate, got %+v", candidates)
	}
}

func TestMergeWithSeed(t *testing.T) {
	seed := &seedFile{
		Teams: []seedTeam{
			{TeamName: "Seed Only FC", Provider: "tsdb", ProviderTeamID: "99", League: "mls", Sport: "soccer"},
			{TeamName: "Old Name", Provider: "espn", ProviderTeamID: "1", League: "nfl", Sport: "football"},
		},
	}
	apiTeams := []domain.Team{
		{Name: "Fresh Name", Provider: "espn", ProviderTeamID: "1", League: "nfl", Sport: "football"},
	}
	merged, _ := mergeWithSeed(apiTeams, nil, seed)
	byID := make(map[string]domain.Team)
	for _, t := range merged {
		byID[t.ProviderTeamID] = t
	}
	if byID["1"].Name != "Fresh Name" {
		t.Errorf("expected API data to overwrite seed, got %q", byID["1"].Name)
	}
	if _, ok := byID["99"]; !ok {
		t.Errorf("expected seed-only team to survive merge")
	}
}

func TestLoadSeedMissingFileIsNotError(t *testing.T) {
	sf, err := loadSeed(filepath.Join(os.TempDir(), "does-not-exist-teamcache-seed.json"))
	if err != nil {
		t.Fatalf("missing seed file should not error: %v", err)
	}
	if sf != nil {
		t.Errorf("expected nil seed data for missing file")
	}
}
