package timeline

import (
	"errors"
	"testing"
	"time"
)

func TestParseClinicalDateFormats(t *testing.T) {
	cases := []struct {
		raw       string
		declared  string
		want      string
		precision string
	}{
		{"2018-05-27", "", "2018-05-27", PrecisionDay},
		{"2018-05-27T14:30:00Z", "", "2018-05-27", PrecisionDay},
		{"2018-05-27T14:30:00", "", "2018-05-27", PrecisionDay},
		{"2018-05", "", "2018-05-01", PrecisionMonth},
		{"2018", "", "2018-01-01", PrecisionYear},
		{"2018-05-27", "month", "2018-05-01", PrecisionMonth},
		{"2018-05-27", "year", "2018-01-01", PrecisionYear},
	}

	for _, tc := range cases {
		date, err := ParseClinicalDate(tc.raw, tc.declared)
		if err != nil {
			t.Fatalf("ParseClinicalDate(%q, %q): %v", tc.raw, tc.declared, err)
		}
		if got := date.Time.Format("2006-01-02"); got != tc.want {
			t.Fatalf("ParseClinicalDate(%q, %q) = %s, want %s", tc.raw, tc.declared, got, tc.want)
		}
		if date.Precision != tc.precision {
			t.Fatalf("ParseClinicalDate(%q, %q) precision = %s, want %s", tc.raw, tc.declared, date.Precision, tc.precision)
		}
		if loc := date.Time.Location(); loc != time.UTC {
			t.Fatalf("expected UTC, got %v", loc)
		}
	}
}

func TestParseClinicalDateDeclaredPrecisionNeverRefines(t *testing.T) {
	// A month-granular input stays month-granular even when the caller
	// claims day precision.
	date, err := ParseClinicalDate("2018-05", "day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if date.Precision != PrecisionMonth {
		t.Fatalf("precision = %s, want %s", date.Precision, PrecisionMonth)
	}
}

func TestParseClinicalDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "27/05/2018", "not-a-date"} {
		_, err := ParseClinicalDate(raw, "")
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		var normErr *DateNormalizationError
		if !errors.As(err, &normErr) {
			t.Fatalf("expected DateNormalizationError for %q, got %T", raw, err)
		}
	}

	if _, err := ParseClinicalDate("2018-05-27", "hour"); err == nil {
		t.Fatal("expected error for unknown precision")
	}
}

func TestDaysBetweenIsSigned(t *testing.T) {
	a := time.Date(2018, 5, 20, 23, 0, 0, 0, time.UTC)
	b := time.Date(2018, 5, 27, 1, 0, 0, 0, time.UTC)

	if got := DaysBetween(a, b); got != 7 {
		t.Fatalf("DaysBetween forward = %d, want 7", got)
	}
	if got := DaysBetween(b, a); got != -7 {
		t.Fatalf("DaysBetween backward = %d, want -7", got)
	}
	if got := DaysBetween(a, a); got != 0 {
		t.Fatalf("DaysBetween same = %d, want 0", got)
	}
}

func TestSameCalendarDayIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2018, 5, 27, 0, 5, 0, 0, time.UTC)
	night := time.Date(2018, 5, 27, 23, 55, 0, 0, time.UTC)
	nextDay := time.Date(2018, 5, 28, 0, 5, 0, 0, time.UTC)

	if !SameCalendarDay(morning, night) {
		t.Fatal("expected same calendar day")
	}
	if SameCalendarDay(night, nextDay) {
		t.Fatal("expected different calendar days")
	}
}
