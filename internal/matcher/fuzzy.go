// Package matcher implements C6 Team Matcher and (in cardmatch.go) C7
// Event-Card Matcher. This file is the fuzzy-matching engine underneath
// both: team-pattern generation, mascot stripping, abbreviation
// expansion, and the four-strategy matches_any cascade, all grounded
// directly on original_source/teamarr/utilities/fuzzy_match.py.
package matcher

import (
	"regexp"
	"sort"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/rainycape/unidecode"

	"github.com/nreeb/teamarr/internal/domain"
)

// MinSubstringLength is the shortest pattern eligible for exact-substring
// or token/partial-ratio matching; shorter patterns (abbreviations like
// "CHI") use word-boundary matching instead so they don't falsely
// substring-match city names. Mirrors fuzzy_match.py's
// MIN_SUBSTRING_LENGTH.
const MinSubstringLength = 5

// abbreviations expand common shorthand before matching, e.g. "UFC FN" ->
// "UFC Fight Night". Longer keys are applied first so "ufc fn" takes
// priority over "fn".
var abbreviations = map[string]string{
	"fn":     "fight night",
	"ufc fn": "ufc fight night",
	"ppv":    "pay per view",
	"vs":     "versus",
	"v":      "versus",
}

var abbreviationKeys = sortedByLenDesc(abbreviations)

func sortedByLenDesc(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}

// mascotWords are common team-nickname suffixes stripped when generating
// the "name without mascot" pattern (e.g. "Chicago Blackhawks" ->
// "Chicago"). Subset of fuzzy_match.py's MASCOT_WORDS covering the major
// US leagues plus common soccer suffixes; extend via settings as needed.
var mascotWords = buildMascotSet(
	"team", "club", "fc", "sc", "cf", "united", "city",
	"eagles", "owls", "lions", "tigers", "bears", "wolves", "hawks",
	"falcons", "panthers", "jaguars", "bengals", "colts", "broncos",
	"chargers", "raiders", "ravens", "cardinals", "seahawks", "dolphins",
	"bills", "jets", "giants", "patriots", "steelers", "browns",
	"packers", "vikings", "saints", "buccaneers", "cowboys", "commanders",
	"49ers", "rams", "chiefs", "texans", "titans",
	"cavaliers", "celtics", "bulls", "pistons", "pacers", "heat", "magic",
	"hornets", "wizards", "knicks", "nets", "76ers", "sixers", "raptors",
	"bucks", "timberwolves", "thunder", "blazers", "warriors", "kings",
	"lakers", "clippers", "suns", "nuggets", "jazz", "grizzlies",
	"pelicans", "spurs", "mavericks", "rockets",
	"bruins", "canadiens", "red wings", "blackhawks", "blues", "avalanche",
	"stars", "wild", "predators", "hurricanes", "lightning", "rangers",
	"islanders", "devils", "flyers", "penguins", "capitals", "blue jackets",
	"senators", "maple leafs", "sabres", "kraken", "golden knights",
	"flames", "oilers", "canucks", "sharks", "ducks", "coyotes",
	"rovers", "wanderers", "albion", "athletic", "sporting", "real",
	"dynamo", "racing", "deportivo", "atletico", "inter",
)

func buildMascotSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Result is the outcome of MatchesAny.
type Result struct {
	Matched     bool
	Score       float64
	PatternUsed string
}

// Matcher is a fuzzy string matcher for team/event names, with
// configurable acceptance thresholds (spec.md §4.5 step 5).
type Matcher struct {
	Threshold        float64 // minimum score for a full/token/partial match
	PartialThreshold float64 // minimum score for token-set/partial ratio strategies
}

// NewMatcher returns a Matcher with the default thresholds used by C6.
func NewMatcher() *Matcher {
	return &Matcher{Threshold: 85, PartialThreshold: 90}
}

// GeneratePatterns returns searchable patterns for a team, most specific
// first: full name, name-without-mascot, short name, abbreviation. Each
// is accent-folded, lowercased, and punctuation-stripped.
func (m *Matcher) GeneratePatterns(t domain.Team) []string {
	var patterns []string
	seen := make(map[string]bool)
	add := func(value string) {
		if value == "" {
			return
		}
		n := normalizePattern(value)
		if n != "" && !seen[n] && len(n) >= 2 {
			seen[n] = true
			patterns = append(patterns, n)
		}
	}
	add(t.Name)
	if t.Name != "" {
		add(stripMascot(t.Name))
	}
	add(t.ShortName)
	add(t.Abbreviation)
	return patterns
}

var punctRe = regexp.MustCompile(`[^\w\s]`)
var spaceRe = regexp.MustCompile(`\s+`)

func normalizePattern(s string) string {
	n := strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
	n = punctRe.ReplaceAllString(n, " ")
	n = strings.TrimSpace(spaceRe.ReplaceAllString(n, " "))
	return n
}

// stripMascot removes trailing mascot/suffix words from a team name.
func stripMascot(name string) string {
	nameLower := strings.ToLower(name)

	// Strip the longest matching multi-word mascot from the end first.
	var multiWord []string
	for w := range mascotWords {
		if strings.Contains(w, " ") {
			multiWord = append(multiWord, w)
		}
	}
	sort.Slice(multiWord, func(i, j int) bool { return len(multiWord[i]) > len(multiWord[j]) })
	for _, mascot := range multiWord {
		if strings.HasSuffix(nameLower, " "+mascot) {
			name = name[:len(name)-len(mascot)-1]
			nameLower = strings.ToLower(name)
			break
		}
	}

	words := strings.Fields(name)
	var kept []string
	for _, w := range words {
		clean := strings.ToLower(strings.Trim(w, "'\".,"))
		if !mascotWords[clean] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return name
	}
	return strings.Join(kept, " ")
}

// expandAbbreviations expands known shorthand in text before matching.
func expandAbbreviations(text string) string {
	result := strings.ToLower(text)
	for _, abbrev := range abbreviationKeys {
		expansion := abbreviations[abbrev]
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(abbrev) + `\b`)
		result = re.ReplaceAllString(result, expansion)
	}
	return result
}

// MatchesAny checks whether any pattern matches within text, trying in
// order: exact substring (patterns >=5 chars), word-boundary (shorter
// patterns), token-set ratio, then partial ratio.
func (m *Matcher) MatchesAny(patterns []string, text string) Result {
	textLower := expandAbbreviations(text)

	for _, p := range patterns {
		if len(p) >= MinSubstringLength && strings.Contains(textLower, p) {
			return Result{Matched: true, Score: 100, PatternUsed: p}
		}
	}
	for _, p := range patterns {
		if len(p) < MinSubstringLength {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
			if re.MatchString(textLower) {
				return Result{Matched: true, Score: 100, PatternUsed: p}
			}
		}
	}
	for _, p := range patterns {
		if len(p) >= MinSubstringLength {
			score := float64(fuzzy.TokenSetRatio(p, textLower))
			if score >= m.PartialThreshold {
				return Result{Matched: true, Score: score, PatternUsed: p}
			}
		}
	}
	for _, p := range patterns {
		if len(p) >= MinSubstringLength {
			score := float64(fuzzy.PartialRatio(p, textLower))
			if score >= m.PartialThreshold {
				return Result{Matched: true, Score: score, PatternUsed: p}
			}
		}
	}
	return Result{Matched: false}
}

// BestMatch returns the best-scoring candidate for pattern, or ("", 0) if
// nothing clears the Matcher's threshold.
func (m *Matcher) BestMatch(pattern string, candidates []string) (string, float64) {
	var best string
	var bestScore float64
	patternLower := strings.ToLower(pattern)
	for _, c := range candidates {
		cLower := strings.ToLower(c)
		score := float64(fuzzy.Ratio(patternLower, cLower))
		if s := float64(fuzzy.TokenSetRatio(patternLower, cLower)); s > score {
			score = s
		}
		if s := float64(fuzzy.PartialRatio(patternLower, cLower)); s > score {
			score = s
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore >= m.Threshold {
		return best, bestScore
	}
	return "", 0
}
