// Package template renders the flat {variable} strings used for channel
// names and programme titles. The original's template variables are
// f-string-like substitutions with no control flow (no loops,
// conditionals, or filters), so this is a lookup-and-replace pass over
// "{name}" tokens rather than a text/template pipeline.
//
// Grounded on original_source/teamarr/templates/variables/home_away.py
// and venue.py: each exported variable there (is_home, vs_at, home_team,
// venue, ...) becomes one entry in the Context map built by
// NewContext, keyed by the same name.
package template

import (
	"strings"
	"unicode"

	"github.com/nreeb/teamarr/internal/domain"
)

// Context holds every named value a template string may reference,
// resolved once per event/segment/team so Render itself stays a pure
// string substitution with no domain knowledge.
type Context map[string]string

// NewContext builds the full set of home/away and venue variables for
// one event, from the perspective of teamID (the channel's configured
// team, when the group is team-scoped; pass "" for card-style events
// with no home perspective, in which case is_home/vs_at/etc. resolve
// empty exactly as the Python registry returns "" when game_ctx has no
// event).
func NewContext(ev domain.Event, teamID string) Context {
	ctx := Context{
		"home_team":              ev.HomeTeam.Name,
		"away_team":              ev.AwayTeam.Name,
		"home_team_abbrev":       strings.ToUpper(ev.HomeTeam.Abbreviation),
		"away_team_abbrev":       strings.ToUpper(ev.AwayTeam.Abbreviation),
		"home_team_abbrev_lower": strings.ToLower(ev.HomeTeam.Abbreviation),
		"away_team_abbrev_lower": strings.ToLower(ev.AwayTeam.Abbreviation),
		"home_team_pascal":       toPascalCase(ev.HomeTeam.Name),
		"away_team_pascal":       toPascalCase(ev.AwayTeam.Name),
		"home_team_logo":         ev.HomeTeam.LogoURL,
		"away_team_logo":         ev.AwayTeam.LogoURL,
		"venue":                  ev.Venue,
		"league":                 ev.League,
		"sport":                  ev.Sport,
		"event_name":             ev.Name,
		"season":                 ev.Season,
	}

	if teamID != "" {
		isHome := ev.HomeTeam.ProviderTeamID == teamID
		ctx["is_home"] = boolString(isHome)
		ctx["is_away"] = boolString(!isHome)
		ctx["home_away_text"] = choose(isHome, "at home", "on the road")
		ctx["vs_at"] = choose(isHome, "vs", "at")
		ctx["vs_@"] = choose(isHome, "vs", "@")
	}

	return ctx
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func choose(cond bool, onTrue, onFalse string) string {
	if cond {
		return onTrue
	}
	return onFalse
}

// diacriticFold maps the accented Latin letters that actually show up
// in team names (Spanish, French, German, Nordic) to their ASCII
// base letter. Narrower than a full Unicode NFKD fold, but team names
// don't draw from scripts outside this set.
var diacriticFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n', 'ç': 'c', 'ý': 'y', 'ÿ': 'y',
	'Á': 'A', 'À': 'A', 'Â': 'A', 'Ä': 'A', 'Ã': 'A', 'Å': 'A',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I',
	'Ó': 'O', 'Ò': 'O', 'Ô': 'O', 'Ö': 'O', 'Õ': 'O', 'Ø': 'O',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U',
	'Ñ': 'N', 'Ç': 'C', 'Ý': 'Y',
}

func stripDiacritics(s string) string {
	var out strings.Builder
	for _, r := range s {
		if folded, ok := diacriticFold[r]; ok {
			out.WriteRune(folded)
			continue
		}
		if r < unicode.MaxASCII {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// toPascalCase mirrors the Python helper's behavior: normalize to
// ASCII, split on runs of non-alphanumeric characters, title-case and
// join each word. "Atlético Madrid" -> "AtleticoMadrid".
func toPascalCase(name string) string {
	ascii := stripDiacritics(name)
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range ascii {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	var out strings.Builder
	for _, w := range words {
		out.WriteString(strings.ToUpper(w[:1]))
		if len(w) > 1 {
			out.WriteString(strings.ToLower(w[1:]))
		}
	}
	return out.String()
}

// Render substitutes every "{name}" token in tmpl with ctx[name],
// leaving unknown tokens untouched so a typo'd variable name is
// visible in the output rather than silently dropped.
func Render(tmpl string, ctx Context) string {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		out.WriteString(tmpl[i : i+open])
		start := i + open
		close := strings.IndexByte(tmpl[start:], '}')
		if close < 0 {
			out.WriteString(tmpl[start:])
			break
		}
		name := tmpl[start+1 : start+close]
		if val, ok := ctx[name]; ok {
			out.WriteString(val)
		} else {
			out.WriteString(tmpl[start : start+close+1])
		}
		i = start + close + 1
	}
	return out.String()
}
