package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// Account emails are never used as metric labels directly; at most their
// domain is attached, and only when detailed labels are enabled.

// ExtractUserDomain extracts the domain part from an email address.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Operation types for Google API metrics and spans.
const (
	OperationCalendarList = "calendar_list"
	OperationEventsList   = "events_list"
	OperationUserinfo     = "userinfo"
	OperationToken        = "token"
)

// Aggregation result values.
const (
	AggregationSuccess = "success"
	AggregationPartial = "partial"
	AggregationError   = "error"
)
