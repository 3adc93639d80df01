package espn

import (
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/leaguemap"
)

func TestSportLeagueUsesProviderLeagueIDOverride(t *testing.T) {
	s, errs := leaguemap.Load([]domain.LeagueMapping{
		{LeagueCode: "nfl", Provider: "espn", Sport: "football", Enabled: true, ProviderLeagueID: "football:nfl"},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	p := New(s)
	sport, league := p.sportLeague("nfl")
	if sport != "football" || league != "nfl" {
		t.Errorf("sportLeague = (%q, %q)", sport, league)
	}
}

func TestSportLeagueInfersSoccerFromDotNotation(t *testing.T) {
	p := New(emptySource(t))
	sport, league := p.sportLeague("eng.1")
	if sport != "soccer" || league != "eng.1" {
		t.Errorf("sportLeague = (%q, %q)", sport, league)
	}
}

func TestSportLeagueFallsBackToUnknownSport(t *testing.T) {
	p := New(emptySource(t))
	sport, _ := p.sportLeague("made-up-league")
	if sport != "unknown" {
		t.Errorf("sport = %q, want unknown", sport)
	}
}

func TestSupportsLeagueAcceptsDotNotationWithoutMapping(t *testing.T) {
	p := New(emptySource(t))
	if !p.SupportsLeague("uefa.champions") {
		t.Error("expected soccer dot-notation league to be supported without an explicit mapping")
	}
	if p.SupportsLeague("nonexistent") {
		t.Error("expected unmapped non-soccer league to be unsupported")
	}
}

func TestParseEventMapsStatusAndScores(t *testing.T) {
	e := espnEvent{
		ID:   "401",
		Name: "Giants at Cowboys",
		Date: "2026-09-10T17:00Z",
	}
	e.Status.Type.Name = "STATUS_FINAL"
	comp := espnCompetition{}
	comp.Venue.FullName = "AT&T Stadium"
	comp.Competitors = []espnCompetitor{
		{HomeAway: "home", Score: "27", Team: espnTeam{ID: "1", DisplayName: "Cowboys"}},
		{HomeAway: "away", Score: "20", Team: espnTeam{ID: "2", DisplayName: "Giants"}},
	}
	e.Competitions = []espnCompetition{comp}

	ev, ok := parseEvent(e, "nfl", "football")
	if !ok {
		t.Fatal("expected event to parse")
	}
	if ev.Status != domain.StatusFinal {
		t.Errorf("Status = %v, want final", ev.Status)
	}
	if ev.HomeTeam.Name != "Cowboys" || ev.AwayTeam.Name != "Giants" {
		t.Errorf("teams = %+v / %+v", ev.HomeTeam, ev.AwayTeam)
	}
	if ev.Scores["1"] != 27 || ev.Scores["2"] != 20 {
		t.Errorf("Scores = %v", ev.Scores)
	}
	if ev.Venue != "AT&T Stadium" {
		t.Errorf("Venue = %q", ev.Venue)
	}
}

func TestParseEventRejectsUnparseableDate(t *testing.T) {
	e := espnEvent{ID: "1", Date: "not-a-date", Competitions: []espnCompetition{{}}}
	if _, ok := parseEvent(e, "nfl", "football"); ok {
		t.Error("expected event with bad date to be rejected")
	}
}

func TestParseEventRejectsNoCompetitions(t *testing.T) {
	e := espnEvent{ID: "1", Date: "2026-09-10T17:00Z"}
	if _, ok := parseEvent(e, "nfl", "football"); ok {
		t.Error("expected event with no competitions to be rejected")
	}
}

func TestParseEventDefaultsUnknownStatusToScheduled(t *testing.T) {
	e := espnEvent{ID: "1", Date: "2026-09-10T17:00Z", Competitions: []espnCompetition{{}}}
	e.Status.Type.Name = "STATUS_SOMETHING_NEW"
	ev, ok := parseEvent(e, "nfl", "football")
	if !ok {
		t.Fatal("expected event to parse")
	}
	if ev.Status != domain.StatusScheduled {
		t.Errorf("Status = %v, want scheduled fallback", ev.Status)
	}
}

func TestParseTeamUsesFirstLogo(t *testing.T) {
	team := parseTeam(espnTeam{
		ID: "1", DisplayName: "Cowboys", ShortName: "Cowboys", Abbreviation: "DAL",
		Logos: []struct {
			Href string `json:"href"`
		}{{Href: "https://example.com/logo.png"}},
	}, "nfl", "football")
	if team.LogoURL != "https://example.com/logo.png" {
		t.Errorf("LogoURL = %q", team.LogoURL)
	}
}

func TestSameDayComparesCalendarDateInUTC(t *testing.T) {
	a := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	if !sameDay(a, b) {
		t.Error("expected same calendar day")
	}
}

func emptySource(t *testing.T) *leaguemap.Source {
	t.Helper()
	s, errs := leaguemap.Load(nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	return s
}
