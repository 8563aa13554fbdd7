// Package store provides the SQLite journal behind the Kelsen engine.
//
// The journal is append-only: one invocation row per call and one
// completion row per invocation, written together in a transaction per
// top-level call. All reads order by seq (the engine's logical clock),
// never by wall time, so a journal replays identically.
//
// Database configuration:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Content-addressed ids are computed in internal/ir from canonical JSON;
// args and results are stored in the same canonical form.
package store
