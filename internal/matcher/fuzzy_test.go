package matcher

import (
	"testing"

	"github.com/nreeb/teamarr/internal/domain"
)

func TestStripMascot(t *testing.T) {
	cases := map[string]string{
		"Chicago Blackhawks":    "Chicago",
		"Toronto Maple Leafs":   "Toronto",
		"Columbus Blue Jackets": "Columbus",
		"Florida Atlantic Owls": "Florida Atlantic",
	}
	for in, want := range cases {
		if got := stripMascot(in); got != want {
			t.Errorf("stripMascot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShortPatternWordBoundary(t *testing.T) {
	m := NewMatcher()
	r := m.MatchesAny([]string{"chi"}, "welcome to chicago tonight")
	if r.Matched {
		t.Error("short pattern should not substring-match city name")
	}
	r = m.MatchesAny([]string{"chi"}, "CHI @ DET")
	if !r.Matched {
		t.Error("short pattern should word-boundary match standalone token")
	}
}

func TestExactSubstringMatch(t *testing.T) {
	m := NewMatcher()
	r := m.MatchesAny([]string{"florida atlantic"}, "florida atlantic owls game")
	if !r.Matched || r.Score != 100 {
		t.Errorf("expected exact substring match, got %+v", r)
	}
}

func TestExpandAbbreviations(t *testing.T) {
	got := expandAbbreviations("UFC FN Prelims")
	if got != "ufc fight night prelims" {
		t.Errorf("got %q", got)
	}
}

func TestGeneratePatterns(t *testing.T) {
	m := NewMatcher()
	team := domain.Team{Name: "Florida Atlantic Owls", ShortName: "FAU", Abbreviation: "FAU"}
	patterns := m.GeneratePatterns(team)
	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern")
	}
	found := false
	for _, p := range patterns {
		if p == "florida atlantic" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected mascot-stripped pattern among %v", patterns)
	}
}
