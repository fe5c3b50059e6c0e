// Package calendar provides pure date arithmetic over ISO dates.
package calendar

import (
	"fmt"
	"time"
)

const isoLayout = "2006-01-02"

// Parse validates an ISO YYYY-MM-DD date strictly. Dates that only
// parse after normalization (2008-02-30 becomes 2008-03-01) are
// rejected.
func Parse(isoDate string) (time.Time, error) {
	t, err := time.Parse(isoLayout, isoDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", isoDate, err)
	}
	if t.Format(isoLayout) != isoDate {
		return time.Time{}, fmt.Errorf("date %q does not exist", isoDate)
	}
	return t, nil
}

// DayCount returns the number of whole days between the date's midnight
// in loc and the reference instant, rounding partial days toward the
// past. A date equal to the reference day yields 0.
func DayCount(isoDate string, loc *time.Location, ref time.Time) (int, error) {
	t, err := Parse(isoDate)
	if err != nil {
		return 0, err
	}
	if loc == nil {
		loc = time.UTC
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	elapsed := ref.Sub(midnight)
	days := int(elapsed / (24 * time.Hour))
	if elapsed < 0 && elapsed%(24*time.Hour) != 0 {
		days--
	}
	return days, nil
}

// Weekday returns the English weekday name for the date, independent of
// time of day or timezone.
func Weekday(isoDate string) (string, error) {
	t, err := Parse(isoDate)
	if err != nil {
		return "", err
	}
	return t.Weekday().String(), nil
}
