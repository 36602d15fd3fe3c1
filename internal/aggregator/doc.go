// Package aggregator merges the events of many Google accounts and calendars
// into one sorted sequence for a time window.
//
// Every (account, calendar) pair is fetched concurrently. A pair whose token
// is rejected gets exactly one silent refresh and one retry; the refreshed
// account is broadcast to the registered refresh listeners so the account
// store can persist it. Failures are isolated per pair: the window only fails
// with an *AggregationError when nothing at all could be fetched.
package aggregator
