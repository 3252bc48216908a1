// Package store persists simulation snapshots.
//
// Two backends share the SnapshotStore interface:
//   - FileStore: one YAML file per snapshot under <dir>/<run id>/
//   - SQLiteStore: one row per snapshot in a SQLite database
//
// Snapshots are keyed by (run id, step). Saving the same key twice
// overwrites. Listing is ordered by step ascending.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - Single connection: SQLite has one writer
package store
