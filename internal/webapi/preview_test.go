package webapi

import "testing"

func TestPreviewEventToDomainEventCarriesFields(t *testing.T) {
	p := previewEvent{HomeTeam: "Packers", AwayTeam: "Lions", Venue: "Lambeau Field", League: "nfl"}
	ev := p.toDomainEvent()
	if ev.HomeTeam.Name != "Packers" || ev.AwayTeam.Name != "Lions" {
		t.Errorf("teams = %+v / %+v", ev.HomeTeam, ev.AwayTeam)
	}
	if ev.Venue != "Lambeau Field" || ev.League != "nfl" {
		t.Errorf("Venue=%q League=%q", ev.Venue, ev.League)
	}
}
