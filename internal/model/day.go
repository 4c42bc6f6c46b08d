package model

import "time"

// DayLayout is the calendar-date format used for check-in days.
const DayLayout = "2006-01-02"

// DayOf returns the local calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// DayWindow is one local calendar day of a contract.
type DayWindow struct {
	Day   string
	Start time.Time
	End   time.Time
}

// ContractDays lists the local days covered by a contract: day 0 is the
// local date of StartDate and there are DurationDays of them.
func ContractDays(c Contract, loc *time.Location) []DayWindow {
	local := c.StartDate.In(loc)
	first := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	days := make([]DayWindow, 0, c.DurationDays)
	for i := 0; i < c.DurationDays; i++ {
		start := first.AddDate(0, 0, i)
		days = append(days, DayWindow{
			Day:   start.Format(DayLayout),
			Start: start,
			End:   start.AddDate(0, 0, 1),
		})
	}
	return days
}
