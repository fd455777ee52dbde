// Package store keeps a SQLite ledger of batch runs.
//
// Each run is one row in runs, keyed by its UUIDv7 id, with one row per
// input file in jobs. Writes are idempotent: recording the same run twice
// leaves the ledger unchanged.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: jobs cascade with their run
//
// Listings are ordered by start time, newest first, with the id as a
// tiebreaker so results are stable.
package store
