// Package goal computes how many hours a user still owes today to stay on
// track for their monthly goal.
package goal

import (
	"fmt"
	"time"
)

type Goal struct {
	Reached bool
	Over24  bool
	Hours   float64
}

// Today spreads the hours remaining in the month over the days left in it.
// On the last day the whole remainder is due, shown as ">24" when it no
// longer fits in a day. Months are counted in UTC.
func Today(monthly int, worked float64, now time.Time) Goal {
	now = now.UTC()
	remaining := float64(monthly) - worked
	if remaining <= 0 {
		return Goal{Reached: true}
	}
	daysLeft := DaysInMonth(now) - now.Day()
	if daysLeft <= 0 {
		if remaining > 24 {
			return Goal{Over24: true, Hours: remaining}
		}
		return Goal{Hours: remaining}
	}
	return Goal{Hours: remaining / float64(daysLeft)}
}

func (g Goal) String() string {
	switch {
	case g.Reached:
		return "Goal Reached!"
	case g.Over24:
		return ">24"
	default:
		return fmt.Sprintf("%.2f", g.Hours)
	}
}

func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
