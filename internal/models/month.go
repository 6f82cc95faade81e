package models

import (
	"fmt"
	"time"
)

// Month is a calendar month encoded as year*12 + (month-1). The integer
// form makes "three months after" plain addition and gives a natural map key.
type Month int

// NewMonth builds a Month from a year and calendar month.
func NewMonth(year int, month time.Month) Month {
	return Month(year*12 + int(month) - 1)
}

// MonthOf truncates t to its calendar month (in t's own location).
func MonthOf(t time.Time) Month {
	return NewMonth(t.Year(), t.Month())
}

// ParseMonth accepts "2006-01" or "2006-01-02" and drops the day.
func ParseMonth(s string) (Month, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid month %q", s)
}

func (m Month) Year() int { return int(m) / 12 }
func (m Month) Month() time.Month { return time.Month(int(m)%12 + 1) }
func (m Month) AddMonths(n int) Month { return m + Month(n) }
func (m Month) Before(other Month) bool { return m < other }
func (m Month) After(other Month) bool { return m > other }

// MonthsUntil returns the number of months from m to other (negative when
// other is earlier).
func (m Month) MonthsUntil(other Month) int { return int(other - m) }

// Time returns midnight UTC on the first day of the month.
func (m Month) Time() time.Time {
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// String formats as the first-of-month date used in every export.
func (m Month) String() string {
	return m.Time().Format("2006-01-02")
}

// Label is the short form used in the printed summary, e.g. "Apr 2023".
func (m Month) Label() string {
	return m.Time().Format("Jan 2006")
}

// MonthRange returns every month in [from, to]; empty when to is before from.
func MonthRange(from, to Month) []Month {
	if to < from {
		return nil
	}
	months := make([]Month, 0, int(to-from)+1)
	for m := from; m <= to; m++ {
		months = append(months, m)
	}
	return months
}

// MarshalText encodes the month as its first-of-month date.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(text []byte) error {
	parsed, err := ParseMonth(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
