// Package calendar provides a read-only client for the Google Calendar API
// and the Event type that agenda aggregates.
//
// Clients are built per bearer token with a static token source, so an
// expired or revoked token surfaces as an HTTP 401 instead of being refreshed
// behind the caller's back. Token refresh and retry live in the aggregator.
//
// Example usage:
//
//	f := calendar.NewFactory()
//	cals, err := f.ListCalendars(ctx, token)
//	if err != nil {
//	    if calendar.IsUnauthorized(err) {
//	        // refresh and retry
//	    }
//	}
//	events, err := f.ListEvents(ctx, token, "primary", start, start.AddDate(0, 0, 14))
package calendar
