// Package store provides SQLite-backed persistence for quip.
//
// Two things are stored:
//   - Snapshots: named copies of every fact value, string facts by text,
//     tagged with the hash of the catalog they were taken under
//   - Picks: an append-only log of pick events ordered by the engine's
//     logical clock
//
// # Ordering
//
// Picks are read back ORDER BY seq ASC. Seq comes from the engine clock,
// never from wall time, so a log replays identically. Snapshot facts keep
// the order they were exported in.
//
// # Connection
//
// Open keeps a single connection, switches the file to WAL with
// synchronous=NORMAL, waits up to five seconds on a locked file and turns
// foreign keys on so deleting a snapshot removes its facts. Each pragma is
// read back after it is set. Schema upgrades are tracked in user_version.
package store
