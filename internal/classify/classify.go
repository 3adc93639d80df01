// Package classify implements C2 of the matching and lifecycle engine:
// categorizing a NormalizedStream into {placeholder, event_card,
// team_vs_team, unknown} and extracting league/sport/card-segment hints.
// Pattern tables are the system's domain knowledge and are rebuilt
// wholesale on change (spec.md §4.2) rather than mutated in place.
package classify

import (
	"regexp"
	"strings"

	"github.com/nreeb/teamarr/internal/domain"
)

// LeaguePattern maps a regex to one or more league codes (umbrella brands
// like "NFL" resolve to a single code; others may resolve to several).
type LeaguePattern struct {
	Pattern *regexp.Regexp
	Leagues []string
	Sport   string
}

// CardSegmentPattern pairs a segment with its detection regex. Kept as an
// ordered slice (most-specific first) rather than a map, since map
// iteration order is randomized and a text like "Early Prelims" matches
// both the early_prelims and prelims patterns — first match must win
// deterministically.
type CardSegmentPattern struct {
	Segment domain.CardSegment
	Pattern *regexp.Regexp
}

// Patterns holds the full rule set used by a Classifier. Loaded once at
// startup from internal/store's detection_keywords table (or defaults
// below) and atomically swapped on change — never mutated in place while
// a classification is in flight.
type Patterns struct {
	Placeholder      []*regexp.Regexp
	CombatKeyword    []*regexp.Regexp
	CombatExclusion  []*regexp.Regexp
	Leagues          []LeaguePattern
	Separators       []*regexp.Regexp
	CardSegment      []CardSegmentPattern
}

// DefaultPatterns returns the built-in pattern set, used until/unless the
// user-editable detection_keywords table overrides it.
func DefaultPatterns() Patterns {
	return Patterns{
		Placeholder: compileAll(
			`(?i)\bcoming soon\b`,
			`(?i)\boff\s*air\b`,
			`(?i)\bno\s+event\b`,
			`(?i)\bplease\s+stand\s+by\b`,
			`(?i)\bto\s+be\s+announced\b|\btba\b`,
		),
		CombatKeyword: compileAll(
			`(?i)\bUFC\b`,
			`(?i)\bPFL\b`,
			`(?i)\bBellator\b`,
			`(?i)\bONE\s+FC\b|\bONE\s+Championship\b`,
			`(?i)\bboxing\b`,
		),
		CombatExclusion: compileAll(
			`(?i)\bweigh[\s-]?in`,
			`(?i)\bpress\s+conference\b`,
			`(?i)\bcountdown\b`,
		),
		Leagues: []LeaguePattern{
			{regexp.MustCompile(`(?i)\bNFL\b`), []string{"nfl"}, "football"},
			{regexp.MustCompile(`(?i)\bNBA\b`), []string{"nba"}, "basketball"},
			{regexp.MustCompile(`(?i)\bMLB\b`), []string{"mlb"}, "baseball"},
			{regexp.MustCompile(`(?i)\bNHL\b`), []string{"nhl"}, "hockey"},
			{regexp.MustCompile(`(?i)\bPremier\s+League\b|\bEPL\b`), []string{"epl"}, "soccer"},
			{regexp.MustCompile(`(?i)\bLa\s*Liga\b`), []string{"laliga"}, "soccer"},
			{regexp.MustCompile(`(?i)\bUFC\b`), []string{"ufc"}, "mma"},
			{regexp.MustCompile(`(?i)\bATP\b|\bWTA\b`), []string{"atp", "wta"}, "tennis"},
		},
		Separators: compileAll(
			`(?i)\s+vs\.?\s+`,
			`(?i)\s+v\s+`,
			`(?i)\s+@\s+`,
			`(?i)\s+at\s+`,
		),
		// Most-specific first: "Early Prelims" matches both this and the
		// plain prelims pattern below, so early_prelims must be checked
		// first for detectCardSegment's first-match-wins loop to pick it.
		CardSegment: []CardSegmentPattern{
			{domain.SegmentEarlyPrelims, regexp.MustCompile(`(?i)\bearly\s+prelims?\b`)},
			{domain.SegmentPrelims, regexp.MustCompile(`(?i)\bprelims?\b`)},
			{domain.SegmentMainCard, regexp.MustCompile(`(?i)\bmain\s+card\b`)},
			{domain.SegmentCombined, regexp.MustCompile(`(?i)\bcombined\b|\bfull\s+card\b`)},
		},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Classifier classifies NormalizedStreams against a swappable Patterns set.
type Classifier struct {
	patterns Patterns
}

// New builds a Classifier from the given pattern set.
func New(p Patterns) *Classifier {
	return &Classifier{patterns: p}
}

// SetPatterns atomically replaces the pattern table (e.g. after the user
// edits detection_keywords). The classifier cache (fingerprint cache
// entries keyed on stream name, not on classification) is unaffected;
// callers that cache classification results must invalidate separately.
func (c *Classifier) SetPatterns(p Patterns) {
	c.patterns = p
}

// Classify categorizes a normalized stream following the decision order
// in spec.md §4.2.
func (c *Classifier) Classify(n domain.NormalizedStream) domain.ClassifiedStream {
	text := n.Normalized

	for _, re := range c.patterns.Placeholder {
		if re.MatchString(text) {
			return domain.ClassifiedStream{Normalized: n, Category: domain.CategoryPlaceholder}
		}
	}
	for _, re := range c.patterns.CombatExclusion {
		if re.MatchString(text) {
			return domain.ClassifiedStream{Normalized: n, Category: domain.CategoryPlaceholder}
		}
	}
	for _, re := range c.patterns.CombatKeyword {
		if re.MatchString(text) {
			cs := domain.ClassifiedStream{
				Normalized: n,
				Category:   domain.CategoryEventCard,
				EventHint:  extractEventHint(text),
			}
			cs.CardSegment = detectCardSegment(c.patterns, text)
			if league, sport := matchLeague(c.patterns, text); league != "" {
				cs.LeagueHint = league
				cs.SportHint = sport
			}
			return cs
		}
	}
	for _, re := range c.patterns.Separators {
		if re.MatchString(text) {
			cs := domain.ClassifiedStream{Normalized: n, Category: domain.CategoryTeamVsTeam}
			if league, sport := matchLeague(c.patterns, text); league != "" {
				cs.LeagueHint = league
				cs.SportHint = sport
			}
			return cs
		}
	}
	return domain.ClassifiedStream{Normalized: n, Category: domain.CategoryUnknown}
}

func matchLeague(p Patterns, text string) (league, sport string) {
	for _, lp := range p.Leagues {
		if lp.Pattern.MatchString(text) {
			if len(lp.Leagues) > 0 {
				return lp.Leagues[0], lp.Sport
			}
		}
	}
	return "", ""
}

func detectCardSegment(p Patterns, text string) domain.CardSegment {
	for _, cs := range p.CardSegment {
		if cs.Pattern.MatchString(text) {
			if cs.Segment == domain.SegmentCombined {
				return domain.SegmentMainCard
			}
			return cs.Segment
		}
	}
	return ""
}

// eventNumberRe extracts a brand-name-plus-number event hint such as
// "UFC 315" from free text.
var eventNumberRe = regexp.MustCompile(`(?i)\b(UFC|PFL|Bellator|ONE)\s*(\d+)\b`)

func extractEventHint(text string) string {
	m := eventNumberRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1] + " " + m[2])
}
