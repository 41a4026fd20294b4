// Package store provides the SQLite-backed object store that dbsync
// coordinates writes against.
//
// The store holds two tables:
//   - entities: one row per (entity type, canonical key) with fields as
//     canonical JSON and an insertion sequence
//   - relations: ordered links between entity rows, removed with either end
//
// # Contexts
//
// Writes happen inside a WriteContext: a dedicated writer connection with a
// lazily-begun transaction that is committed or discarded exactly once. The
// writer pool holds a single connection, so only one WriteContext can be
// open at a time; Stats records the high-water mark.
//
// Reads go through the ReadContext, backed by a separate query-only pool.
// Readers never wait on the writer and observe the last committed state.
//
// # Ordering
//
// All ordering uses the seq logical clock, never timestamps. Fetches end in
// ORDER BY seq ASC, pk ASC COLLATE BINARY so results are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds (WithBusyTimeout)
//   - foreign_keys=ON: Relations cascade with their entities
package store
