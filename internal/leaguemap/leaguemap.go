// Package leaguemap implements C3: a process-scoped, read-only index of
// league_code -> (provider, provider_id, aliases, sport, fallback). Loaded
// once at Engine construction and never mutated afterward; this mirrors
// the teacher's internal/gracenote.DB pattern of building several
// in-memory indices over one authoritative slice on load.
package leaguemap

import (
	"fmt"
	"strings"

	"github.com/nreeb/teamarr/internal/domain"
)

// Source is the read-only in-memory index.
type Source struct {
	byCode     map[string][]domain.LeagueMapping // league_code -> mappings across providers
	byProvider map[string]map[string]domain.LeagueMapping // provider -> league_code -> mapping
}

// Load builds a Source from a slice of mappings (typically read once from
// the `leagues` table at startup). Invariant enforced: every enabled
// mapping must carry a non-empty sport (spec.md §3); violating rows are
// dropped and reported in the returned error slice.
func Load(mappings []domain.LeagueMapping) (*Source, []error) {
	s := &Source{
		byCode:     make(map[string][]domain.LeagueMapping),
		byProvider: make(map[string]map[string]domain.LeagueMapping),
	}
	var errs []error
	for _, m := range mappings {
		if m.Enabled && m.Sport == "" {
			errs = append(errs, fmt.Errorf("league mapping %s/%s: enabled mapping missing sport", m.LeagueCode, m.Provider))
			continue
		}
		s.byCode[m.LeagueCode] = append(s.byCode[m.LeagueCode], m)
		if s.byProvider[m.Provider] == nil {
			s.byProvider[m.Provider] = make(map[string]domain.LeagueMapping)
		}
		s.byProvider[m.Provider][m.LeagueCode] = m
	}
	return s, errs
}

// ForCode returns every provider mapping registered for a league code.
func (s *Source) ForCode(code string) []domain.LeagueMapping {
	return s.byCode[code]
}

// ForProvider returns the mapping for a given (provider, league_code), if any.
func (s *Source) ForProvider(provider, code string) (domain.LeagueMapping, bool) {
	m, ok := s.byProvider[provider][code]
	return m, ok
}

// EnabledLeagues returns every distinct league_code with at least one
// enabled mapping, used by C4's refresh to enumerate work.
func (s *Source) EnabledLeagues() []string {
	seen := make(map[string]bool)
	var out []string
	for code, mappings := range s.byCode {
		for _, m := range mappings {
			if m.Enabled {
				if !seen[code] {
					seen[code] = true
					out = append(out, code)
				}
				break
			}
		}
	}
	return out
}

// ForProviderAll returns every enabled mapping registered under a given
// provider, for providers that need to enumerate "every league I serve"
// (e.g. SportsProvider.GetSupportedLeagues). Mirrors the original
// LeagueMappingSource.get_leagues_for_provider.
func (s *Source) ForProviderAll(provider string) []domain.LeagueMapping {
	var out []domain.LeagueMapping
	for _, m := range s.byProvider[provider] {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// ResolveFallback returns the fallback (provider, provider_league_id) for
// a mapping when its primary provider lacks coverage, or ("", "") if none.
func ResolveFallback(m domain.LeagueMapping) (provider, providerLeagueID string) {
	return m.FallbackProvider, m.FallbackLeagueID
}

// MatchAlias reports whether text contains this mapping's display name or
// alias as a case-insensitive substring — used by C2's league-hint pass
// when the built-in pattern table doesn't cover a user-added league.
func MatchAlias(m domain.LeagueMapping, text string) bool {
	lower := strings.ToLower(text)
	if m.DisplayName != "" && strings.Contains(lower, strings.ToLower(m.DisplayName)) {
		return true
	}
	if m.LeagueAlias != "" && strings.Contains(lower, strings.ToLower(m.LeagueAlias)) {
		return true
	}
	return false
}
