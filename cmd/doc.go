// Package cmd implements the command-line interface for agenda.
//
// This package provides the following commands:
//   - login: Connect a Google account
//   - accounts: List, remove or reconnect connected accounts
//   - calendars: List, sync or toggle the calendars of an account
//   - events: Print the merged timeline of all accounts
//   - badge: Print the countdown to the next primary event
//   - serve: Refresh in the background and expose metrics and health endpoints
//   - version: Display version information
//
// The events command is the default command when no subcommand is specified.
package cmd
