package shared

import (
	"fmt"
	"time"
)

// PeriodLayout is the month format used for payroll periods.
const PeriodLayout = "2006-01"

// Period is a calendar month, e.g. "2024-06".
type Period string

// ParsePeriod validates a YYYY-MM string.
func ParsePeriod(raw string) (Period, error) {
	if _, err := time.Parse(PeriodLayout, raw); err != nil {
		return "", Invalidf("period %q must be YYYY-MM", raw)
	}
	return Period(raw), nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(PeriodLayout))
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	t, err := time.Parse(PeriodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Previous returns the preceding month.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p Period) String() string {
	return string(p)
}

// Label renders the period for documents, e.g. "June 2024".
func (p Period) Label() string {
	start := p.Start()
	if start.IsZero() {
		return string(p)
	}
	return fmt.Sprintf("%s %d", start.Month(), start.Year())
}
