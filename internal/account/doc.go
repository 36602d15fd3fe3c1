// Package account defines the connected Google accounts tracked by agenda and
// the Store that owns them.
//
// An Account carries its bearer token, a status visible to the user and the
// per-calendar visibility configuration. The Store is the only owner of
// account state: other components receive accounts by value and report
// changes back through Store.Upsert (usually via a refresh listener).
package account
