// Package badge derives the short countdown shown for the next event of
// the primary calendars.
package badge

import (
	"fmt"
	"math"
	"time"

	"github.com/teemow/agenda/internal/calendar"
)

// Tier classifies how close the next event is.
type Tier string

const (
	TierNone   Tier = ""
	TierUrgent Tier = "urgent"
	TierSoon   Tier = "soon"
	TierToday  Tier = "today"
	TierLater  Tier = "later"
)

// Color returns the badge background color of the tier.
func (t Tier) Color() string {
	switch t {
	case TierUrgent:
		return "#d93025"
	case TierSoon:
		return "#f29900"
	case TierToday:
		return "#1a73e8"
	case TierLater:
		return "#5f6368"
	}
	return ""
}

// Badge is the computed countdown.
type Badge struct {
	Text  string `json:"text"`
	Tier  Tier   `json:"tier"`
	Color string `json:"color"`
	// Event is the event the badge counts down to, nil when there is none.
	Event *calendar.Event `json:"event,omitempty"`
}

// Compute returns the badge for events at now. Only events of primary
// calendars are considered. An ongoing timed event shows "now"; otherwise
// the earliest event starting after now is counted down to. All-day events
// start at local midnight in now's location.
func Compute(events []calendar.Event, now time.Time) Badge {
	var next *calendar.Event
	var nextStart time.Time
	for i := range events {
		ev := events[i]
		if !ev.IsPrimary {
			continue
		}
		if ev.Ongoing(now) {
			return newBadge("now", TierUrgent, &ev)
		}
		start := ev.Start.SortKey(now.Location())
		if start.After(now) && (next == nil || start.Before(nextStart)) {
			next, nextStart = &ev, start
		}
	}
	if next == nil {
		return Badge{}
	}

	minutes := int(math.Ceil(nextStart.Sub(now).Minutes()))
	return newBadge(text(minutes), tier(minutes), next)
}

func newBadge(text string, t Tier, ev *calendar.Event) Badge {
	return Badge{Text: text, Tier: t, Color: t.Color(), Event: ev}
}

func text(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh", int(math.Round(float64(minutes)/60)))
	default:
		return fmt.Sprintf("%dd", int(math.Round(float64(minutes)/(24*60))))
	}
}

func tier(minutes int) Tier {
	switch {
	case minutes <= 15:
		return TierUrgent
	case minutes < 60:
		return TierSoon
	case minutes < 24*60:
		return TierToday
	default:
		return TierLater
	}
}
