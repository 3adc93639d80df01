// Package streamfilter implements C9 Stream Filter & Extractor:
// per-group regex include/exclude filtering plus team-name extraction,
// with an optional custom extraction regex overriding five built-in
// separator patterns. Grounded on
// original_source/teamarr/services/stream_filter.py (full file read)
// for the include→exclude→extract pipeline and the builtin separator
// pattern list; pattern compilation/caching follows the teacher's
// lazy-regex-cache idiom used across internal/classify's pattern tables
// (compile once, an invalid pattern is logged and simply never matches,
// never panics).
package streamfilter

import (
	"log"
	"regexp"
	"strings"
)

// RawStream is one stream entry from an upstream M3U group, before C1
// normalization.
type RawStream struct {
	ID             int64
	Name           string
	M3UAccountName string
	GroupName      string
}

// ExtractMethod records how team names were extracted from a stream
// name, for diagnostics.
type ExtractMethod string

const (
	ExtractCustom  ExtractMethod = "custom"
	ExtractBuiltin ExtractMethod = "builtin"
	ExtractNone    ExtractMethod = "none"
)

// ExtractResult is the outcome of team-name extraction.
type ExtractResult struct {
	Success bool
	Team1   string
	Team2   string
	Method  ExtractMethod
}

// FilterResult is the outcome of applying include/exclude filters to a
// batch of streams, with per-reason counts (spec.md §4.8: "reports
// filtered counts by reason").
type FilterResult struct {
	Passed          []RawStream
	TotalInput      int
	FilteredInclude int // didn't match the include pattern
	FilteredExclude int // matched the exclude pattern
}

// builtinTeamPatterns mirrors _extract_teams_builtin's separator list,
// in priority order: vs/versus, @, at, v, hyphen. Each stops at the
// first of a following pipe/hyphen/bracket or end-of-string so trailing
// stream metadata (quality tags, provider suffixes) isn't captured.
var builtinTeamPatterns = compileBuiltins([]string{
	`(?i)(.+?)\s+(?:vs\.?|versus)\s+(.+?)(?:\s*[|\-\[]|$)`,
	`(?i)(.+?)\s+@\s+(.+?)(?:\s*[|\-\[]|$)`,
	`(?i)(.+?)\s+at\s+(.+?)(?:\s*[|\-\[]|$)`,
	`(?i)(.+?)\s+v\s+(.+?)(?:\s*[|\-\[]|$)`,
	`(?i)(.+?)\s+-\s+(.+?)(?:\s*[|\-\[]|$)`,
})

func compileBuiltins(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// compilePattern compiles pattern case-insensitively, logging and
// returning nil on an invalid pattern rather than erroring — an invalid
// user-supplied regex must never match, never panic.
func compilePattern(pattern string) *regexp.Regexp {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		log.Printf("[STREAMFILTER] invalid pattern %q: %v (will never match)", pattern, err)
		return nil
	}
	return re
}

// Filter applies one EventEPGGroup's regex configuration. Built from
// compiled patterns once (per-group), then reused across many Apply
// calls as the group's streams are (re)fetched.
type Filter struct {
	include      *regexp.Regexp
	exclude      *regexp.Regexp
	teamsPattern *regexp.Regexp
	skipBuiltin  bool
}

// NewFilter compiles a Filter from a group's raw regex strings. Empty
// strings mean "disabled" for that stage, matching the teacher's
// enabled-flag-plus-string pairing collapsed to a single optional field.
func NewFilter(includeRegex, excludeRegex, teamExtractRegex string, skipBuiltin bool) *Filter {
	include := compilePattern(includeRegex)
	if include == nil && strings.TrimSpace(includeRegex) != "" {
		// Invalid include pattern: match nothing rather than everything.
		include = regexp.MustCompile(`[^\s\S]`)
	}
	return &Filter{
		include:      include,
		exclude:      compilePattern(excludeRegex),
		teamsPattern: compilePattern(teamExtractRegex),
		skipBuiltin:  skipBuiltin,
	}
}

// Apply runs the include→exclude pipeline from spec.md §4.8: regex
// include must match, regex exclude must not match.
func (f *Filter) Apply(streams []RawStream) FilterResult {
	result := FilterResult{TotalInput: len(streams)}
	for _, s := range streams {
		if f.include != nil && !f.include.MatchString(s.Name) {
			result.FilteredInclude++
			continue
		}
		if f.exclude != nil && f.exclude.MatchString(s.Name) {
			result.FilteredExclude++
			continue
		}
		result.Passed = append(result.Passed, s)
	}
	return result
}

// ExtractTeams extracts two team-name tokens from streamName. A custom
// pattern, if configured, is tried first: named groups team1/team2 take
// priority, falling back to the first two positional groups. If no
// custom pattern matched (or none is configured) and skip_builtin is
// not set, the five builtin separator patterns are tried in order.
func (f *Filter) ExtractTeams(streamName string) ExtractResult {
	if f.teamsPattern != nil {
		if r, ok := extractFromPattern(f.teamsPattern, streamName); ok {
			r.Method = ExtractCustom
			return r
		}
	}
	if f.skipBuiltin {
		return ExtractResult{Method: ExtractNone}
	}
	for _, pattern := range builtinTeamPatterns {
		if r, ok := extractFromPattern(pattern, streamName); ok {
			r.Method = ExtractBuiltin
			return r
		}
	}
	return ExtractResult{Method: ExtractNone}
}

func extractFromPattern(re *regexp.Regexp, streamName string) (ExtractResult, bool) {
	m := re.FindStringSubmatch(streamName)
	if m == nil {
		return ExtractResult{}, false
	}
	names := re.SubexpNames()
	var team1, team2 string
	if idx := indexOfName(names, "team1"); idx > 0 && idx < len(m) {
		team1 = m[idx]
	}
	if idx := indexOfName(names, "team2"); idx > 0 && idx < len(m) {
		team2 = m[idx]
	}
	if team1 == "" && team2 == "" && len(m) >= 3 {
		team1, team2 = m[1], m[2]
	}
	team1 = strings.TrimSpace(team1)
	team2 = strings.TrimSpace(team2)
	if team1 == "" || team2 == "" {
		return ExtractResult{}, false
	}
	return ExtractResult{Success: true, Team1: team1, Team2: team2}, true
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
