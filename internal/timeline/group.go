package timeline

import (
	"time"

	"github.com/teemow/agenda/internal/calendar"
)

// Day is the events starting on one calendar day.
type Day struct {
	// Date is formatted as calendar.DateLayout.
	Date   string
	Events []calendar.Event
}

// GroupByDay buckets events by the local date of their effective start.
// Days appear in order of first occurrence, which is chronological for a
// sorted input.
func GroupByDay(events []calendar.Event, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}

	var days []Day
	index := map[string]int{}
	for _, ev := range events {
		date := ev.Start.Date
		if !ev.Start.IsAllDay() {
			date = ev.Start.DateTime.In(loc).Format(calendar.DateLayout)
		}
		i, ok := index[date]
		if !ok {
			i = len(days)
			index[date] = i
			days = append(days, Day{Date: date})
		}
		days[i].Events = append(days[i].Events, ev)
	}
	return days
}
