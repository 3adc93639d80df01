package teamcache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/store"
)

// cachedTeam is one team_cache row, with lowercased fields precomputed
// for substring matching.
type cachedTeam struct {
	domain.Team
	nameLower  string
	shortLower string
	abbrLower  string
}

// Index is C4's read side: an in-memory index over team_cache, rebuilt
// after every Refresh so find_candidate_leagues stays off the SQLite hot
// path during matching (spec.md §5: short transactions, no cross-call
// locks). Satisfies internal/matcher.TeamLeagueIndex.
type Index struct {
	db *store.Store

	mu    sync.RWMutex
	teams []cachedTeam
}

// NewIndex wires an Index over db; call Load once at startup and again
// after each Refresh.
func NewIndex(db *store.Store) *Index {
	return &Index{db: db}
}

// Load reloads the in-memory index from team_cache.
func (idx *Index) Load(ctx context.Context) error {
	rows, err := idx.db.DB.QueryContext(ctx, `
		SELECT provider, provider_team_id, league, name, short_name, abbreviation, sport, logo_url
		FROM team_cache
	`)
	if err != nil {
		return fmt.Errorf("teamcache: load index: %w", err)
	}
	defer rows.Close()

	var loaded []cachedTeam
	for rows.Next() {
		var t domain.Team
		var shortName, abbrev, logoURL *string
		if err := rows.Scan(&t.Provider, &t.ProviderTeamID, &t.League, &t.Name, &shortName, &abbrev, &t.Sport, &logoURL); err != nil {
			return fmt.Errorf("teamcache: scan index row: %w", err)
		}
		if shortName != nil {
			t.ShortName = *shortName
		}
		if abbrev != nil {
			t.Abbreviation = *abbrev
		}
		if logoURL != nil {
			t.LogoURL = *logoURL
		}
		loaded = append(loaded, cachedTeam{
			Team:       t,
			nameLower:  strings.ToLower(t.Name),
			shortLower: strings.ToLower(t.ShortName),
			abbrLower:  strings.ToLower(t.Abbreviation),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("teamcache: iterate index rows: %w", err)
	}

	idx.mu.Lock()
	idx.teams = loaded
	idx.mu.Unlock()
	return nil
}

// matches reports whether side (already lowercased) substring- or
// abbreviation-matches this team's normalized name, short name, or
// abbreviation — spec.md §4.3's find_candidate_leagues contract.
func (t cachedTeam) matches(sideLower string) bool {
	if sideLower == "" {
		return false
	}
	if t.nameLower != "" && (strings.Contains(sideLower, t.nameLower) || strings.Contains(t.nameLower, sideLower)) {
		return true
	}
	if t.shortLower != "" && strings.Contains(sideLower, t.shortLower) {
		return true
	}
	if t.abbrLower != "" && wordBoundaryContains(sideLower, t.abbrLower) {
		return true
	}
	return false
}

// wordBoundaryContains checks tok appears in s as a whole space-delimited
// word — used for short abbreviations ("CHI") so they don't falsely
// substring-match unrelated text.
func wordBoundaryContains(s, tok string) bool {
	if tok == "" {
		return false
	}
	for _, word := range strings.Fields(s) {
		if strings.Trim(word, ".,:;") == tok {
			return true
		}
	}
	return false
}

// FindCandidateLeagues returns the (league, provider) pairs where a team
// matching side1 AND a team matching side2 both appear — the
// intersection spec.md §4.3 requires. If sport is non-empty, candidates
// are restricted to that sport.
func (idx *Index) FindCandidateLeagues(ctx context.Context, team1, team2, sport string) ([]domain.LeagueMapping, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	side1 := strings.ToLower(strings.TrimSpace(team1))
	side2 := strings.ToLower(strings.TrimSpace(team2))
	if side1 == "" || side2 == "" {
		return nil, nil
	}

	type leagueKey struct{ league, provider string }
	side1Leagues := make(map[leagueKey]string) // -> sport
	side2Leagues := make(map[leagueKey]string)

	for _, t := range idx.teams {
		if sport != "" && !strings.EqualFold(t.Sport, sport) {
			continue
		}
		k := leagueKey{t.League, t.Provider}
		if t.matches(side1) {
			side1Leagues[k] = t.Sport
		}
		if t.matches(side2) {
			side2Leagues[k] = t.Sport
		}
	}

	var out []domain.LeagueMapping
	for k, sp := range side1Leagues {
		if _, ok := side2Leagues[k]; ok {
			out = append(out, domain.LeagueMapping{LeagueCode: k.league, Provider: k.provider, Sport: sp, Enabled: true})
		}
	}
	return out, nil
}

// GetTeamLeagues returns the distinct leagues a provider-scoped team ID
// appears in for the given provider and sport. Sport is required: team
// IDs are provider-scoped, not globally unique (spec.md §4.3).
func (idx *Index) GetTeamLeagues(ctx context.Context, providerTeamID, providerName, sport string) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, t := range idx.teams {
		if t.ProviderTeamID == providerTeamID && t.Provider == providerName && strings.EqualFold(t.Sport, sport) {
			if !seen[t.League] {
				seen[t.League] = true
				out = append(out, t.League)
			}
		}
	}
	return out, nil
}

// GetTeamNameByID resolves a provider-scoped team ID to its cached name,
// never calling a live provider.
func (idx *Index) GetTeamNameByID(ctx context.Context, providerTeamID, league, providerName string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, t := range idx.teams {
		if t.ProviderTeamID == providerTeamID && t.League == league && t.Provider == providerName {
			return t.Name, true
		}
	}
	return "", false
}
