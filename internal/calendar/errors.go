package calendar

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// CalendarListError is returned when the calendar list of an account cannot
// be fetched.
type CalendarListError struct {
	// Status is the HTTP status code, or 0 for transport errors.
	Status int
	Err    error
}

func (e *CalendarListError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to fetch calendar list (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("failed to fetch calendar list: %v", e.Err)
}

func (e *CalendarListError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the server rejected the token.
func (e *CalendarListError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// EventFetchError is returned when the events of one calendar cannot be
// fetched.
type EventFetchError struct {
	CalendarID string
	// Status is the HTTP status code, or 0 for transport errors.
	Status int
	Err    error
}

func (e *EventFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to fetch events for calendar %s (HTTP %d): %v", e.CalendarID, e.Status, e.Err)
	}
	return fmt.Sprintf("failed to fetch events for calendar %s: %v", e.CalendarID, e.Err)
}

func (e *EventFetchError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the server rejected the token.
func (e *EventFetchError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// IsUnauthorized reports whether err, or any error it wraps, is an
// authorization failure (HTTP 401) from the Google API.
func IsUnauthorized(err error) bool {
	return statusCode(err) == http.StatusUnauthorized
}

// statusCode returns the HTTP status of a Google API error, or 0.
func statusCode(err error) int {
	var u interface{ Unauthorized() bool }
	if errors.As(err, &u) && u.Unauthorized() {
		return http.StatusUnauthorized
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
