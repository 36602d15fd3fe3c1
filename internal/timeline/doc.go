// Package timeline accumulates aggregated events into a growing,
// de-duplicated timeline.
//
// A Loader starts with an initial window beginning now and extends it one
// page at a time. Events are keyed by event ID and account ID, so an event
// returned by two overlapping windows appears once, while the same event ID
// in two different accounts appears twice.
package timeline
