// Package store provides durable storage for the warden decision core.
// Uses SQLite with WAL mode for concurrent read access.
//
// Contents:
//   - focus_objects: versioned identity objects; the version column is the
//     optimistic-concurrency token the conflict watcher protocol compares.
//   - audit_events: the run audit log, written idempotently via
//     content-addressed IDs (ON CONFLICT DO NOTHING).
//   - rule_counters: policy-rule threshold counters with atomic
//     increment-and-read, the external counter capability behind the
//     "increment exactly once per run" invariant.
//   - conflict_watchers: live watcher registrations (token, focus,
//     base version).
//   - background_tasks: persisted continuation tasks with an opaque lens
//     snapshot payload.
//   - sequence values: globally monotonic audit sequence numbers, reserved
//     per request so a failed run can reclaim what it never used.
//
// SINGLE WRITER: the connection pool is limited to one connection; SQLite
// supports one writer at a time and this avoids SQLITE_BUSY churn. Runs
// for different focus objects share the store but serialize their writes.
package store
