package aggregator

import (
	"errors"
	"strings"
)

// ErrTooManyListeners is returned by AddRefreshListener when the listener
// limit is reached.
var ErrTooManyListeners = errors.New("too many refresh listeners")

// AggregationError is returned when a window produced no events and at
// least one account or calendar failed.
type AggregationError struct {
	// Messages holds one entry per failed account or pair.
	Messages []string
}

// Error joins all messages with newlines.
func (e *AggregationError) Error() string {
	if len(e.Messages) == 0 {
		return "failed to fetch events"
	}
	return strings.Join(e.Messages, "\n")
}
