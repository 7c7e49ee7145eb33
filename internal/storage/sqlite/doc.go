// Package sqlite contains the SQLite repository for stabilization
// domain types.
//
// All database read/write operations for runs, tracks, and stats
// snapshots belong here rather than in the engine package. This keeps
// the engine free of SQL noise and makes it easy to swap storage
// backends for testing.
package sqlite
