// Package kv provides the durable key-value persistence used by agenda.
//
// The account registry and the cached initial event window are stored as
// JSON documents under fixed keys. Several backends are available:
//
//   - file: one file per key in the user cache directory (default)
//   - sqlite: a single SQLite database in WAL mode
//   - valkey: a Valkey (Redis-compatible) server, for shared deployments
//   - memory: process-local, used by tests
//
// The file backend also implements Watcher so that the background scheduler
// can react when another process (for example the CLI) changes the accounts.
package kv
