// Package eventstore persists agent events to SQLite, append-only and keyed
// by session.
//
// Invariants:
// - Rows are only ever inserted; replay order is insertion order.
// - Persistence is best-effort from the loop's point of view; the fan-out
//   consumer decides what to do with a failed write.
package eventstore
