// Package provider defines the SportsProvider capability and a registry
// that fans requests out across concrete adapters (internal/provider/espn,
// .../hockeytech, .../cricbuzz). Grounded on internal/schedulesdirect's
// JSON-over-HTTP client shape and on internal/httpclient for resilience;
// the registry's per-provider failure isolation mirrors
// internal/gracenote's multi-tier lookup, where a missing tier degrades to
// the next rather than surfacing as an error to the caller.
package provider

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

// SportsProvider is implemented once per upstream sports-data source.
// Errors returned from its methods must be reserved for context
// cancellation or programmer error; a provider that is merely down or
// rate-limited should return (nil, nil) or an empty slice, and log —
// core matching logic never sees provider-specific exceptions.
type SportsProvider interface {
	Name() string
	SupportsLeague(league string) bool
	GetSupportedLeagues() []string
	GetEvents(ctx context.Context, league string, date time.Time) ([]domain.Event, error)
	GetEvent(ctx context.Context, id, league string) (*domain.Event, error)
	GetTeam(ctx context.Context, id, league string) (*domain.Team, error)
	GetLeagueTeams(ctx context.Context, league string) ([]domain.Team, error)
}

// Registry fans out across registered providers by name, isolating a
// single provider's failure from the rest of a refresh or match pass.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]SportsProvider
}

// NewRegistry returns an empty Registry; register providers with Add.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]SportsProvider)}
}

// Add registers a provider under its own Name().
func (r *Registry) Add(p SportsProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider, or nil if unregistered.
func (r *Registry) Get(name string) SportsProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

// GetEventsWindow fetches events for (league, provider) across a ±windowDays
// range around target, one day at a time, tolerating single-day failures.
// Implements the matcher.EventFetcher and teamcache.EventFetcher contracts.
func (r *Registry) GetEventsWindow(ctx context.Context, league, providerName string, target time.Time, windowDays int) ([]domain.Event, error) {
	p := r.Get(providerName)
	if p == nil {
		return nil, nil
	}
	var out []domain.Event
	for d := -windowDays; d <= windowDays; d++ {
		day := target.AddDate(0, 0, d)
		events, err := p.GetEvents(ctx, league, day)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			log.Printf("[PROVIDER] %s: GetEvents(%s, %s) failed: %v", providerName, league, day.Format("2006-01-02"), err)
			continue
		}
		out = append(out, events...)
	}
	return out, nil
}

// GetLeagueTeams delegates to the named provider, returning (nil, nil) for
// an unregistered provider rather than an error — C4's refresh loop treats
// a disabled/misconfigured provider as "contributes nothing this round."
func (r *Registry) GetLeagueTeams(ctx context.Context, providerName, league string) ([]domain.Team, error) {
	p := r.Get(providerName)
	if p == nil {
		return nil, nil
	}
	teams, err := p.GetLeagueTeams(ctx, league)
	if err != nil {
		log.Printf("[PROVIDER] %s: GetLeagueTeams(%s) failed: %v", providerName, league, err)
		return nil, nil
	}
	return teams, nil
}
