package template

import (
	"testing"

	"github.com/nreeb/teamarr/internal/domain"
)

func event() domain.Event {
	return domain.Event{
		Name:   "Lions at Packers",
		League: "nfl",
		Venue:  "Lambeau Field",
		HomeTeam: domain.Team{
			ProviderTeamID: "gb", Name: "Green Bay Packers", Abbreviation: "GB",
		},
		AwayTeam: domain.Team{
			ProviderTeamID: "det", Name: "Detroit Lions", Abbreviation: "DET",
		},
	}
}

func TestRenderSubstitutesKnownVariables(t *testing.T) {
	ctx := NewContext(event(), "")
	got := Render("{away_team} @ {home_team}", ctx)
	if got != "Detroit Lions @ Green Bay Packers" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderLeavesUnknownTokensUntouched(t *testing.T) {
	ctx := NewContext(event(), "")
	got := Render("{away_team} {nonsense}", ctx)
	if got != "Detroit Lions {nonsense}" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderHandlesUnterminatedBrace(t *testing.T) {
	ctx := NewContext(event(), "")
	got := Render("{home_team", ctx)
	if got != "{home_team" {
		t.Errorf("Render = %q", got)
	}
}

func TestNewContextResolvesHomePerspective(t *testing.T) {
	ctx := NewContext(event(), "gb")
	if ctx["is_home"] != "true" || ctx["is_away"] != "false" {
		t.Errorf("is_home=%q is_away=%q", ctx["is_home"], ctx["is_away"])
	}
	if ctx["vs_at"] != "vs" || ctx["home_away_text"] != "at home" {
		t.Errorf("vs_at=%q home_away_text=%q", ctx["vs_at"], ctx["home_away_text"])
	}
}

func TestNewContextResolvesAwayPerspective(t *testing.T) {
	ctx := NewContext(event(), "det")
	if ctx["is_home"] != "false" || ctx["is_away"] != "true" {
		t.Errorf("is_home=%q is_away=%q", ctx["is_home"], ctx["is_away"])
	}
	if ctx["vs_at"] != "at" || ctx["vs_@"] != "@" {
		t.Errorf("vs_at=%q vs_@=%q", ctx["vs_at"], ctx["vs_@"])
	}
}

func TestNewContextOmitsHomeAwayWithoutTeamID(t *testing.T) {
	ctx := NewContext(event(), "")
	if _, ok := ctx["is_home"]; ok {
		t.Error("expected is_home to be absent when no team perspective given")
	}
}

func TestToPascalCaseStripsPunctuationAndSpaces(t *testing.T) {
	cases := map[string]string{
		"Detroit Lions": "DetroitLions",
		"D.C. United":    "DCUnited",
	}
	for in, want := range cases {
		if got := toPascalCase(in); got != want {
			t.Errorf("toPascalCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToPascalCaseStripsDiacritics(t *testing.T) {
	if got := toPascalCase("Atlético Madrid"); got != "AtleticoMadrid" {
		t.Errorf("toPascalCase = %q, want AtleticoMadrid", got)
	}
}

func TestAbbrevCasing(t *testing.T) {
	ctx := NewContext(event(), "")
	if ctx["home_team_abbrev"] != "GB" || ctx["home_team_abbrev_lower"] != "gb" {
		t.Errorf("home_team_abbrev=%q home_team_abbrev_lower=%q", ctx["home_team_abbrev"], ctx["home_team_abbrev_lower"])
	}
}
