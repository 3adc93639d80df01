package webapi

import "github.com/nreeb/teamarr/internal/domain"

// previewEvent is the subset of domain.Event a template preview needs,
// built straight from HTTP query params with no team-cache lookups.
type previewEvent struct {
	HomeTeam, AwayTeam string
	Venue, League      string
}

func (p previewEvent) toDomainEvent() domain.Event {
	return domain.Event{
		HomeTeam: domain.Team{Name: p.HomeTeam},
		AwayTeam: domain.Team{Name: p.AwayTeam},
		Venue:    p.Venue,
		League:   p.League,
	}
}
