package driver

import (
	"errors"
	"strings"
	"time"
)

// Period selects the earnings window shown to a driver.
type Period string

const (
	PeriodToday Period = "TODAY"
	PeriodWeek  Period = "WEEK"
	PeriodMonth Period = "MONTH"
)

var ErrInvalidPeriod = errors.New("invalid earnings period")

// ParsePeriod normalizes (uppercases+trims) and validates a period string.
// An empty string means today.
func ParsePeriod(in string) (Period, error) {
	in = strings.ToUpper(strings.TrimSpace(in))
	if in == "" {
		return PeriodToday, nil
	}
	period := Period(in)
	if period.Valid() {
		return period, nil
	}
	return "", ErrInvalidPeriod
}

// Valid reports whether period is one of the allowed period constants.
func (period Period) Valid() bool {
	switch period {
	case PeriodToday, PeriodWeek, PeriodMonth:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Period.
func (period Period) String() string {
	return string(period)
}

// Since returns the inclusive start of the window ending at now.
// Weeks start on Monday; months on the 1st.
func (period Period) Since(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case PeriodWeek:
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return midnight
	}
}
