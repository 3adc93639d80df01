package hockeytech

import (
	"testing"

	"github.com/nreeb/teamarr/internal/domain"
)

func TestParseStatusRecognizesPeriodIndicators(t *testing.T) {
	cases := map[string]domain.EventStatus{
		"":          domain.StatusScheduled,
		"Final":     domain.StatusFinal,
		"Final OT":  domain.StatusFinal,
		"ppd":       domain.StatusPostponed,
		"postponed": domain.StatusPostponed,
		"cancelled": domain.StatusCancelled,
		"1st":       domain.StatusLive,
		"12:34":     domain.StatusLive,
		"SO":        domain.StatusLive,
		"scheduled": domain.StatusScheduled,
	}
	for in, want := range cases {
		if got := parseStatus(in); got != want {
			t.Errorf("parseStatus(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseGameTimePrefersISO8601(t *testing.T) {
	g := hockeyGame{GameDateISO8601: "2026-01-15T19:00:00Z", DatePlayed: "2026-01-16"}
	start, ok := parseGameTime(g)
	if !ok {
		t.Fatal("expected time to parse")
	}
	if start.Day() != 15 {
		t.Errorf("expected ISO8601 value to win, got day %d", start.Day())
	}
}

func TestParseGameTimeFallsBackToDatePlayed(t *testing.T) {
	g := hockeyGame{DatePlayed: "2026-01-16"}
	start, ok := parseGameTime(g)
	if !ok {
		t.Fatal("expected time to parse")
	}
	if start.Day() != 16 {
		t.Errorf("Day = %d, want 16", start.Day())
	}
}

func TestParseGameTimeRejectsEmpty(t *testing.T) {
	if _, ok := parseGameTime(hockeyGame{}); ok {
		t.Error("expected empty game to fail to parse a time")
	}
}

func TestBuildTeamJoinsCityAndNickname(t *testing.T) {
	team := buildTeam("10", "London", "Knights", "LDN", "ohl", "hockey")
	if team.Name != "London Knights" {
		t.Errorf("Name = %q", team.Name)
	}
	if team.Abbreviation != "LDN" {
		t.Errorf("Abbreviation = %q, want LDN", team.Abbreviation)
	}
}

func TestBuildTeamDerivesAbbrevWhenCodeMissing(t *testing.T) {
	team := buildTeam("10", "London", "Knights", "", "ohl", "hockey")
	if team.Abbreviation != "KNI" {
		t.Errorf("Abbreviation = %q, want KNI", team.Abbreviation)
	}
}

func TestMakeAbbrevUsesLastWordFirstThreeLetters(t *testing.T) {
	if got := makeAbbrev("London Knights"); got != "KNI" {
		t.Errorf("makeAbbrev = %q, want KNI", got)
	}
}

func TestMakeAbbrevHandlesShortLastWord(t *testing.T) {
	if got := makeAbbrev("Sarnia Sting"); got != "STI" {
		t.Errorf("makeAbbrev = %q, want STI", got)
	}
}

func TestParseEventComputesScoresByTeamID(t *testing.T) {
	g := hockeyGame{
		GameID:            55,
		DatePlayed:        "2026-01-16",
		GameStatus:        "Final",
		HomeTeam:          "Knights",
		HomeTeamCity:      "London",
		HomeTeamNickname:  "Knights",
		HomeTeamCode:      "11",
		VisitingTeam:      "Storm",
		VisitorTeamCity:   "Guelph",
		VisitorTeamNick:   "Storm",
		VisitorTeamCode:   "22",
		HomeGoalCount:     "4",
		VisitingGoalCount: "3",
		VenueName:         "Budweiser Gardens",
	}
	ev, ok := parseEvent(g, "ohl", "hockey")
	if !ok {
		t.Fatal("expected event to parse")
	}
	if ev.Status != domain.StatusFinal {
		t.Errorf("Status = %v, want final", ev.Status)
	}
	if ev.Name != "Guelph Storm at London Knights" {
		t.Errorf("Name = %q", ev.Name)
	}
	if ev.Venue != "Budweiser Gardens" {
		t.Errorf("Venue = %q", ev.Venue)
	}
	if ev.Scores["Knights"] != 4 || ev.Scores["Storm"] != 3 {
		t.Errorf("Scores = %v", ev.Scores)
	}
}

func TestParseEventRejectsUnparseableTime(t *testing.T) {
	if _, ok := parseEvent(hockeyGame{GameID: 1}, "ohl", "hockey"); ok {
		t.Error("expected event with no date fields to be rejected")
	}
}
