package report

import (
	"fmt"
	"time"

	"epoch/internal/store"
)

// ParseRange reads an inclusive YYYY-MM-DD range and returns it as the
// half-open [from, to) used by the store. Missing ends default to the month
// containing now.
func ParseRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	from, to := store.MonthRange(now)
	if fromStr != "" {
		d, err := ParseDay(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = d
	}
	if toStr != "" {
		d, err := ParseDay(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", toStr, fromStr)
	}
	return from, to, nil
}

func ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected a date such as 2016-11-16", s)
	}
	return d, nil
}
