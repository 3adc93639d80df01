// Package teamcache implements C4 Team/League Cache: a full-replacement,
// provider-sourced index answering "which leagues contain both of these
// team names?" Refresh fans out across registered providers with a
// bounded worker pool, grounded directly on internal/sdtprobe/worker.go's
// sweep() (buffered-channel semaphore + sync.WaitGroup, rand.Shuffle
// candidate order, periodic checkpoint) and merges results with a
// distributed seed file the way
// original_source/teamarr/consumers/cache/refresh.py's _merge_with_seed
// does, so free-tier provider keys still yield complete rosters.
package teamcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/provider"
	"github.com/nreeb/teamarr/internal/store"
)

// Workers is the default refresh worker-pool size, matching the
// original's CacheRefresher.MAX_WORKERS.
const Workers = 50

// ProgressFunc receives a human-readable message and an integer percent
// complete (0-100), emitted at each major refresh stage.
type ProgressFunc func(msg string, pct int)

// seedTeam and seedLeague mirror the rows in the distributed seed file
// (database/seed.py's TSDB-backed JSON), used to fill in rosters the
// live provider APIs under-report.
type seedTeam struct {
	TeamName       string `json:"team_name"`
	TeamAbbrev     string `json:"team_abbrev"`
	TeamShortName  string `json:"team_short_name"`
	Provider       string `json:"provider"`
	ProviderTeamID string `json:"provider_team_id"`
	League         string `json:"league"`
	Sport          string `json:"sport"`
	LogoURL        string `json:"logo_url"`
}

type seedLeague struct {
	Code              string `json:"code"`
	Sport             string `json:"sport"`
	ProviderLeagueName string `json:"provider_league_name"`
}

type seedFile struct {
	Teams   []seedTeam   `json:"teams"`
	Leagues []seedLeague `json:"leagues"`
}

func loadSeed(path string) (*seedFile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("teamcache: read seed: %w", err)
	}
	var sf seedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("teamcache: parse seed: %w", err)
	}
	return &sf, nil
}

// leagueResult is what one (provider, league) worker produces.
type leagueResult struct {
	league   string
	provider string
	sport    string
	teams    []domain.Team
	err      error
}

// Refresher owns C4's full-replacement refresh.
type Refresher struct {
	DB        *store.Store
	Providers *provider.Registry
	SeedPath  string // optional; empty disables seed merge
	Workers   int    // default Workers if <= 0
}

// NewRefresher wires a Refresher from its collaborators.
func NewRefresher(db *store.Store, providers *provider.Registry, seedPath string) *Refresher {
	return &Refresher{DB: db, Providers: providers, SeedPath: seedPath, Workers: Workers}
}

// candidate is one (provider, league) unit of work.
type candidate struct {
	provider string
	league   string
	sport    string
}

// Refresh performs the full-replacement refresh described in spec.md
// §4.3: enumerate enabled leagues per provider, fetch teams in a bounded
// parallel pool, dedupe, merge with the seed file, then transactionally
// clear and rewrite team_cache/league_cache and update cache_meta.
func (r *Refresher) Refresh(ctx context.Context, progress ProgressFunc) error {
	workers := r.Workers
	if workers <= 0 {
		workers = Workers
	}
	report := func(msg string, pct int) {
		log.Printf("[TEAMCACHE] %s (%d%%)", msg, pct)
		if progress != nil {
			progress(msg, pct)
		}
	}

	start := time.Now()
	if err := r.setRefreshInProgress(true); err != nil {
		return err
	}
	report("starting cache refresh", 5)

	var candidates []candidate
	for _, name := range r.Providers.Names() {
		p := r.Providers.Get(name)
		if p == nil {
			continue
		}
		for _, league := range p.GetSupportedLeagues() {
			candidates = append(candidates, candidate{provider: name, league: league})
		}
	}
	if len(candidates) == 0 {
		r.updateMeta(0, 0, time.Since(start), fmt.Errorf("no providers registered"))
		_ = r.setRefreshInProgress(false)
		return fmt.Errorf("teamcache: no candidate (provider, league) pairs to refresh")
	}

	// Shuffle so repeated refreshes don't hammer the same provider first
	// every time, mirroring sdtprobe's buildCandidates ordering.
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	report(fmt.Sprintf("fetching from %d provider/league pairs", len(candidates)), 10)
	results := r.sweep(ctx, candidates, workers, report)

	var allTeams []domain.Team
	var leagues []leagueResult
	for _, res := range results {
		if res.err != nil {
			log.Printf("[TEAMCACHE] %s/%s: %v", res.provider, res.league, res.err)
			continue
		}
		leagues = append(leagues, res)
		allTeams = append(allTeams, res.teams...)
	}

	seed, err := loadSeed(r.SeedPath)
	if err != nil {
		log.Printf("[TEAMCACHE] seed load failed, continuing without it: %v", err)
		seed = nil
	}
	mergedTeams, mergedLeagues := mergeWithSeed(allTeams, leagues, seed)

	report(fmt.Sprintf("saving %d teams, %d leagues", len(mergedTeams), len(mergedLeagues)), 95)
	if err := r.save(ctx, mergedTeams, mergedLeagues); err != nil {
		r.updateMeta(0, 0, time.Since(start), err)
		_ = r.setRefreshInProgress(false)
		return err
	}

	r.updateMeta(len(mergedLeagues), len(mergedTeams), time.Since(start), nil)
	_ = r.setRefreshInProgress(false)
	report(fmt.Sprintf("cache refresh complete in %s", time.Since(start).Round(time.Second)), 100)
	return nil
}

// sweep fetches teams for every candidate with a bounded worker pool.
// Grounded on sdtprobe/worker.go's sweep(): buffered channel semaphore,
// WaitGroup fan-out, periodic progress checkpoint every 20 completions.
func (r *Refresher) sweep(ctx context.Context, candidates []candidate, workers int, report ProgressFunc) []leagueResult {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]leagueResult, 0, len(candidates))
	completed := 0
	total := len(candidates)

	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(cand candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			p := r.Providers.Get(cand.provider)
			var res leagueResult
			res.provider = cand.provider
			res.league = cand.league
			if p == nil {
				res.err = fmt.Errorf("provider %q not registered", cand.provider)
			} else {
				teams, err := p.GetLeagueTeams(ctx, cand.league)
				res.teams = teams
				res.err = err
				res.sport = inferSport(cand.league, teams)
			}

			mu.Lock()
			results = append(results, res)
			completed++
			n := completed
			mu.Unlock()

			if n%20 == 0 {
				pct := 10 + int(float64(n)/float64(total)*85)
				report(fmt.Sprintf("%d/%d league pairs fetched", n, total), pct)
			}
		}(cand)
	}
	wg.Wait()
	return results
}

func inferSport(league string, teams []domain.Team) string {
	for _, t := range teams {
		if t.Sport != "" {
			return t.Sport
		}
	}
	if strings.Contains(league, ".") {
		return "soccer"
	}
	return "sports"
}

// mergeWithSeed combines provider-fetched teams/leagues with the seed
// file: seed entries populate first, then live provider data overwrites
// matching (provider, provider_team_id, league) keys since it is fresher.
func mergeWithSeed(apiTeams []domain.Team, apiLeagues []leagueResult, seed *seedFile) ([]domain.Team, []leagueResult) {
	type teamKey struct{ provider, id, league string }
	byKey := make(map[teamKey]domain.Team)

	if seed != nil {
		for _, st := range seed.Teams {
			if st.TeamName == "" {
				continue
			}
			k := teamKey{st.Provider, st.ProviderTeamID, st.League}
			byKey[k] = domain.Team{
				ProviderTeamID: st.ProviderTeamID,
				Provider:       st.Provider,
				League:         st.League,
				Sport:          st.Sport,
				Name:           st.TeamName,
				ShortName:      st.TeamShortName,
				Abbreviation:   st.TeamAbbrev,
				LogoURL:        st.LogoURL,
			}
		}
	}
	for _, t := range apiTeams {
		if t.Name == "" {
			continue
		}
		k := teamKey{t.Provider, t.ProviderTeamID, t.League}
		byKey[k] = t
	}

	mergedTeams := make([]domain.Team, 0, len(byKey))
	for _, t := range byKey {
		mergedTeams = append(mergedTeams, t)
	}

	type leagueKey struct{ league, provider string }
	leaguesByKey := make(map[leagueKey]leagueResult)
	if seed != nil {
		for _, sl := range seed.Leagues {
			leaguesByKey[leagueKey{sl.Code, "tsdb"}] = leagueResult{league: sl.Code, provider: "tsdb", sport: sl.Sport}
		}
	}
	for _, l := range apiLeagues {
		leaguesByKey[leagueKey{l.league, l.provider}] = l
	}
	mergedLeagues := make([]leagueResult, 0, len(leaguesByKey))
	for _, l := range leaguesByKey {
		mergedLeagues = append(mergedLeagues, l)
	}

	return mergedTeams, mergedLeagues
}

// save transactionally clears and rewrites team_cache and league_cache,
// matching plex/dvr.go's transaction idiom (single commit, no ORM).
func (r *Refresher) save(ctx context.Context, teams []domain.Team, leagues []leagueResult) error {
	tx, err := r.DB.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("teamcache: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_cache`); err != nil {
		return fmt.Errorf("teamcache: clear team_cache: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM league_cache`); err != nil {
		return fmt.Errorf("teamcache: clear league_cache: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	insertTeam, err := tx.PrepareContext(ctx, `
		INSERT INTO team_cache (provider, provider_team_id, league, name, short_name, abbreviation, sport, logo_url, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("teamcache: prepare team insert: %w", err)
	}
	defer insertTeam.Close()

	for _, t := range teams {
		if _, err := insertTeam.ExecContext(ctx, t.Provider, t.ProviderTeamID, t.League, t.Name, t.ShortName, t.Abbreviation, t.Sport, t.LogoURL, now); err != nil {
			return fmt.Errorf("teamcache: insert team %s/%s: %w", t.Provider, t.Name, err)
		}
	}

	insertLeague, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO league_cache (league, provider, sport) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("teamcache: prepare league insert: %w", err)
	}
	defer insertLeague.Close()

	for _, l := range leagues {
		sport := l.sport
		if sport == "" {
			sport = "sports"
		}
		if _, err := insertLeague.ExecContext(ctx, l.league, l.provider, sport); err != nil {
			return fmt.Errorf("teamcache: insert league %s/%s: %w", l.provider, l.league, err)
		}
	}

	return tx.Commit()
}

func (r *Refresher) setRefreshInProgress(inProgress bool) error {
	v := 0
	if inProgress {
		v = 1
	}
	_, err := r.DB.DB.Exec(`UPDATE cache_meta SET refresh_in_progress = ? WHERE id = 1`, v)
	return err
}

func (r *Refresher) updateMeta(leaguesCount, teamsCount int, duration time.Duration, refreshErr error) {
	var errText sql.NullString
	if refreshErr != nil {
		errText = sql.NullString{String: refreshErr.Error(), Valid: true}
	}
	_, err := r.DB.DB.Exec(`
		UPDATE cache_meta SET last_full_refresh = ?, leagues_count = ?, teams_count = ?, last_error = ?
		WHERE id = 1
	`, time.Now().UTC().Format(time.RFC3339), leaguesCount, teamsCount, errText)
	if err != nil {
		log.Printf("[TEAMCACHE] update cache_meta: %v", err)
	}
}
