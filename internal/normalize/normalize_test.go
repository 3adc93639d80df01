package normalize

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeStripsMojibake(t *testing.T) {
	got := Normalize("MÃ¼nchen vs Dortmund")
	if strings.Contains(got.Normalized, "Ã") {
		t.Errorf("mojibake survived: %q", got.Normalized)
	}
}

func TestNormalizeStripsProviderPrefix(t *testing.T) {
	got := Normalize("ESPN+: Lions vs Packers")
	if strings.Contains(got.Normalized, "ESPN+") {
		t.Errorf("provider prefix survived: %q", got.Normalized)
	}
	if got.ProviderPrefix == "" {
		t.Error("expected provider prefix to be captured")
	}
}

func TestNormalizeCityAlias(t *testing.T) {
	got := Normalize("Bayern Munchen vs Real Madrid")
	if !strings.Contains(strings.ToLower(got.Normalized), "munich") {
		t.Errorf("expected city alias applied, got %q", got.Normalized)
	}
}

func TestNormalizeMasksDateAndTime(t *testing.T) {
	got := Normalize("Lions vs Packers 11/28/2024 8:20pm")
	if !strings.Contains(got.Normalized, DateMask) {
		t.Errorf("expected date mask, got %q", got.Normalized)
	}
	if !strings.Contains(got.Normalized, TimeMask) {
		t.Errorf("expected time mask, got %q", got.Normalized)
	}
	if got.ExtractedDate == nil {
		t.Fatal("expected extracted date")
	}
	if got.ExtractedDate.Month() != time.November || got.ExtractedDate.Day() != 28 {
		t.Errorf("extracted date wrong: %v", got.ExtractedDate)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize("DAZN: Lions vs Packers 11/28/2024")
	twice := Normalize(once.Normalized)
	if once.Normalized != twice.Normalized {
		t.Errorf("not idempotent: %q vs %q", once.Normalized, twice.Normalized)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	got := Normalize("")
	if got.Normalized != "" || got.Original != "" {
		t.Errorf("expected zero value, got %+v", got)
	}
}

func TestInferYearBoundary(t *testing.T) {
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	if y := inferYear(1, 15, now); y != 2025 {
		t.Errorf("01/15 near now should resolve to 2025, got %d", y)
	}
	if y := inferYear(8, 15, now); y != 2024 {
		t.Errorf("08/15 far in future should resolve to 2024, got %d", y)
	}
}

func TestJanClockTimeNotParsedAsDate(t *testing.T) {
	got := Normalize("Fight Night Jan 11:45pm")
	// "Jan 11" must not be consumed as a month-day date; the clock time
	// should still be extracted and masked.
	if got.ExtractedDate != nil {
		t.Errorf("expected no date extracted from clock-time tail, got %v", got.ExtractedDate)
	}
	if !strings.Contains(got.Normalized, TimeMask) {
		t.Errorf("expected time mask, got %q", got.Normalized)
	}
}
