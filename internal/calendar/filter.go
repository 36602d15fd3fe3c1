package calendar

import (
	"strings"

	"github.com/teemow/agenda/internal/account"
)

// OwnedCalendars keeps the calendars that belong to the account itself:
// the ones whose ID contains the account email, and calendars hosted on
// calendar.google.com (secondary and group calendars). Subscribed calendars
// of other users are dropped.
func OwnedCalendars(email string, cals []account.CalendarConfig) []account.CalendarConfig {
	out := make([]account.CalendarConfig, 0, len(cals))
	for _, c := range cals {
		if (email != "" && strings.Contains(c.ID, email)) || strings.Contains(c.ID, "calendar.google.com") || c.Primary {
			out = append(out, c)
		}
	}
	return out
}
