package timeline

import (
	"fmt"
	"strings"
	"time"
)

const (
	PrecisionDay   = "day"
	PrecisionMonth = "month"
	PrecisionYear  = "year"
)

// DateNormalizationError reports an input date that could not be reduced to
// the single comparable representation every temporal check relies on.
// Comparisons are never attempted on unnormalized dates.
type DateNormalizationError struct {
	Input  string
	Reason string
}

func (e *DateNormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize date %q: %s", e.Input, e.Reason)
}

// ClinicalDate is a UTC calendar date with its declared precision. Month and
// year precision inputs are pinned to the first day of the period so all
// stored dates compare on the same axis.
type ClinicalDate struct {
	Time      time.Time
	Precision string
}

var dateLayouts = []struct {
	layout    string
	precision string
}{
	{time.RFC3339, PrecisionDay},
	{"2006-01-02T15:04:05", PrecisionDay},
	{"2006-01-02", PrecisionDay},
	{"2006-01", PrecisionMonth},
	{"2006", PrecisionYear},
}

// ParseClinicalDate normalizes a raw date or datetime string. When the caller
// declares a precision it wins over the inferred one, as long as it is not
// finer than what the input can support.
func ParseClinicalDate(raw string, declaredPrecision string) (ClinicalDate, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ClinicalDate{}, &DateNormalizationError{Input: raw, Reason: "empty"}
	}

	for _, candidate := range dateLayouts {
		parsed, err := time.Parse(candidate.layout, trimmed)
		if err != nil {
			continue
		}
		precision := candidate.precision
		if declaredPrecision != "" {
			declared := strings.ToLower(declaredPrecision)
			switch declared {
			case PrecisionDay, PrecisionMonth, PrecisionYear:
				if coarser(declared, precision) {
					precision = declared
				}
			default:
				return ClinicalDate{}, &DateNormalizationError{Input: raw, Reason: fmt.Sprintf("unknown precision %q", declaredPrecision)}
			}
		}
		return ClinicalDate{Time: truncate(parsed.UTC(), precision), Precision: precision}, nil
	}

	return ClinicalDate{}, &DateNormalizationError{Input: raw, Reason: "unrecognized format"}
}

func coarser(a, b string) bool {
	rank := map[string]int{PrecisionDay: 0, PrecisionMonth: 1, PrecisionYear: 2}
	return rank[a] > rank[b]
}

func truncate(t time.Time, precision string) time.Time {
	switch precision {
	case PrecisionYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case PrecisionMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// NormalizeDay truncates any timestamp to a UTC calendar day.
func NormalizeDay(t time.Time) time.Time {
	return truncate(t.UTC(), PrecisionDay)
}

// DayKey is the exact-calendar-date grouping key used by duplicate detection.
func DayKey(t time.Time) string {
	return NormalizeDay(t).Format("2006-01-02")
}

// DaysBetween returns the signed number of whole days from a to b, negative
// when b precedes a. Both sides are normalized first so datetime and date
// inputs compare on the same axis.
func DaysBetween(a, b time.Time) int {
	from := NormalizeDay(a)
	to := NormalizeDay(b)
	return int(to.Sub(from).Hours() / 24)
}

// SameCalendarDay reports whether two timestamps fall on the same UTC day.
func SameCalendarDay(a, b time.Time) bool {
	return DayKey(a) == DayKey(b)
}
