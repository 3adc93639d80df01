// Package normalize implements C1 of the matching and lifecycle engine:
// turning one raw, poorly-labeled upstream stream name into a clean,
// deterministic NormalizedStream. The pipeline order below is load-bearing
// (spec.md §4.1) — do not reorder the steps.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/rainycape/unidecode"

	"github.com/nreeb/teamarr/internal/domain"
)

// DateMask and TimeMask are the literal tokens that replace extracted
// date/time spans so later classification regexes never mistake a date
// or time for score-like content.
const (
	DateMask = "DATE_MASK"
	TimeMask = "TIME_MASK"
)

// mojibake is a fixed substitution table for common double-encoded UTF-8
// sequences seen in upstream M3U feeds. Applied before any other
// transform because every later step assumes valid UTF-8.
var mojibake = []struct{ from, to string }{
	{"Ã¼", "ü"},
	{"Ã©", "é"},
	{"Ã¨", "è"},
	{"Ã¡", "á"},
	{"Ã­", "í"},
	{"Ã³", "ó"},
	{"Ãº", "ú"},
	{"Ã±", "ñ"},
	{"Ã¶", "ö"},
	{"Ã¤", "ä"},
	{"Ã§", "ç"},
	{"â€™", "'"},
	{"â€“", "-"},
	{"â€”", "-"},
	{"â€œ", "\""},
	{"â€", "\""},
}

// providerPrefixes are stripped longest-match-first, case-insensitively;
// the stripped value is preserved on the result.
var providerPrefixes = []string{
	"ESPN+",
	"ESPN3",
	"DAZN:",
	"FOXSports:",
	"FOX SPORTS:",
	"NBCSports:",
	"PEACOCK:",
	"PARAMOUNT+:",
	"APPLETV+:",
	"FUBO:",
}

// cityTranslations maps multilingual/ASCII-folded city variants to the
// canonical English form used by team-pattern generation. Applied AFTER
// the general accent fold (münchen -> munchen) so keys are plain ASCII —
// this ordering is load-bearing per spec.md §4.1 step 4.
var cityTranslations = map[string]string{
	"munchen":   "munich",
	"koln":      "cologne",
	"sevilla":   "seville",
	"roma":      "rome",
	"milano":    "milan",
	"torino":    "turin",
	"napoli":    "naples",
	"firenze":   "florence",
	"goteborg":  "gothenburg",
	"moskva":    "moscow",
	"warszawa":  "warsaw",
	"wien":      "vienna",
	"praha":     "prague",
	"athina":    "athens",
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	usDateRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`)
	monthNames  = `Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec|January|February|March|April|June|July|August|September|October|November|December`
	// Negative lookahead isn't supported by RE2 (Go regexp); instead we
	// post-validate a "Mon DD" match against a following clock-time tail
	// (e.g. "Jan 11:45pm") and reject it in code below.
	monthDayRe  = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `)\.?\b`)
	time12hRe   = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s?(am|pm)\b`)
	time24hRe   = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	clockTailRe = regexp.MustCompile(`^:\d{2}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var monthNum = map[string]int{
	"jan": 1, "january": 1, "feb": 2, "february": 2, "mar": 3, "march": 3,
	"apr": 4, "april": 4, "may": 5, "jun": 6, "june": 6, "jul": 7, "july": 7,
	"aug": 8, "august": 8, "sep": 9, "september": 9, "oct": 10, "october": 10,
	"nov": 11, "november": 11, "dec": 12, "december": 12,
}

// Normalize cleans one raw stream name. Never raises; empty input yields
// an empty NormalizedStream.
func Normalize(raw string) domain.NormalizedStream {
	if raw == "" {
		return domain.NormalizedStream{}
	}
	s := raw

	// 1. Newlines -> single spaces.
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	// 2. Mojibake repair.
	for _, m := range mojibake {
		s = strings.ReplaceAll(s, m.from, m.to)
	}

	// 3. Provider-prefix strip (longest match first, case-insensitive).
	prefix := ""
	lower := strings.ToLower(s)
	best := -1
	for _, p := range providerPrefixes {
		pl := strings.ToLower(p)
		if strings.HasPrefix(lower, pl) && len(p) > best {
			best = len(p)
			prefix = s[:len(p)]
		}
	}
	if prefix != "" {
		s = strings.TrimSpace(s[len(prefix):])
	}

	// 4. City aliasing: accent-fold first, then city substitution table.
	s = unidecode.Unidecode(s)
	s = applyCityTranslations(s)

	// 5. Datetime extraction and masking.
	var extractedDate *time.Time
	var extractedTime *time.Duration
	s, extractedDate = extractAndMaskDate(s)
	s, extractedTime = extractAndMaskTime(s)

	// 6. Collapse whitespace, trim.
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return domain.NormalizedStream{
		Original:       raw,
		Normalized:     s,
		ExtractedDate:  extractedDate,
		ExtractedTime:  extractedTime,
		LeagueHint:     "",
		ProviderPrefix: prefix,
	}
}

func applyCityTranslations(s string) string {
	lower := strings.ToLower(s)
	for from, to := range cityTranslations {
		if strings.Contains(lower, from) {
			s = replaceCaseInsensitive(s, from, to)
			lower = strings.ToLower(s)
		}
	}
	return s
}

func replaceCaseInsensitive(s, from, to string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from))
	return re.ReplaceAllString(s, to)
}

// extractAndMaskDate finds the first ISO, US, or month-name date and
// replaces its span with DateMask. Year inference for bare US dates
// follows the ±180-day proximity rule (spec.md §8 boundary behavior).
func extractAndMaskDate(s string, ) (string, *time.Time) {
	return extractAndMaskDateAt(s, time.Now().UTC())
}

func extractAndMaskDateAt(s string, now time.Time) (string, *time.Time) {
	if loc := isoDateRe.FindStringSubmatchIndex(s); loc != nil {
		m := isoDateRe.FindStringSubmatch(s)
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		return maskSpan(s, loc[0], loc[1]), &t
	}
	if loc := usDateRe.FindStringSubmatchIndex(s); loc != nil {
		m := usDateRe.FindStringSubmatch(s)
		mo, d := atoi(m[1]), atoi(m[2])
		var y int
		if m[3] != "" {
			y = atoi(m[3])
			if y < 100 {
				y += 2000
			}
		} else {
			y = inferYear(mo, d, now)
		}
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
			return maskSpan(s, loc[0], loc[1]), &t
		}
	}
	// Month-day ("Dec 31") — but reject if immediately followed by a
	// clock-time tail, i.e. "Jan 11:45pm" must not parse as "Jan 11".
	if loc := monthDayRe.FindStringSubmatchIndex(s); loc != nil {
		tail := s[loc[1]:]
		if !clockTailRe.MatchString(tail) {
			m := monthDayRe.FindStringSubmatch(s)
			mo := monthNum[strings.ToLower(m[1])]
			d := atoi(m[2])
			y := inferYear(mo, d, now)
			t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
			return maskSpan(s, loc[0], loc[1]), &t
		}
	}
	// Day-month ("31 Dec") preferred when both orderings could fire and
	// the month-day form was rejected above.
	if loc := dayMonthRe.FindStringSubmatchIndex(s); loc != nil {
		m := dayMonthRe.FindStringSubmatch(s)
		d := atoi(m[1])
		mo := monthNum[strings.ToLower(m[2])]
		y := inferYear(mo, d, now)
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		return maskSpan(s, loc[0], loc[1]), &t
	}
	return s, nil
}

// inferYear resolves a bare month/day to the nearest calendar occurrence:
// a date more than 180 days in the future relative to `now` (in the
// current year) is assumed to refer to last year's occurrence instead.
func inferYear(month, day int, now time.Time) int {
	y := now.Year()
	candidate := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if candidate.Sub(now) > 180*24*time.Hour {
		return y - 1
	}
	return y
}

func extractAndMaskTime(s string) (string, *time.Duration) {
	if loc := time12hRe.FindStringSubmatchIndex(s); loc != nil {
		m := time12hRe.FindStringSubmatch(s)
		h, min := atoi(m[1]), atoi(m[2])
		if strings.EqualFold(m[3], "pm") && h != 12 {
			h += 12
		}
		if strings.EqualFold(m[3], "am") && h == 12 {
			h = 0
		}
		d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute
		return maskSpan(s, loc[0], loc[1]), &d
	}
	if loc := time24hRe.FindStringSubmatchIndex(s); loc != nil {
		m := time24hRe.FindStringSubmatch(s)
		h, min := atoi(m[1]), atoi(m[2])
		d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute
		return maskSpan(s, loc[0], loc[1]), &d
	}
	return s, nil
}

func maskSpan(s string, start, end int) string {
	isDate := false
	// crude discriminator: date spans contain '-' , '/' or a month name; reuse mask constant accordingly
	span := s[start:end]
	if strings.ContainsAny(span, "-/") || monthDayRe.MatchString(span) || dayMonthRe.MatchString(span) {
		isDate = true
	}
	mask := TimeMask
	if isDate {
		mask = DateMask
	}
	return s[:start] + mask + s[end:]
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
