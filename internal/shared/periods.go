package shared

import (
	"time"
)

// Period identifies a calendar month in YYYY-MM form, the granularity used by
// investor distributions and monthly reporting.
type Period string

// ParsePeriod validates the YYYY-MM form.
func ParsePeriod(raw string) (Period, error) {
	if _, err := time.Parse("2006-01", raw); err != nil {
		return "", Validationf("period must be YYYY-MM, got %q", raw)
	}
	return Period(raw), nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format("2006-01"))
}

// Bounds returns the half-open UTC interval [start, end) covered by the period.
func (p Period) Bounds() (time.Time, time.Time) {
	start, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return start, start.AddDate(0, 1, 0)
}

func (p Period) String() string { return string(p) }
