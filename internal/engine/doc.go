// Package engine implements the dbsync write coordinator.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every store mutation is wrapped in an Operation and submitted to the
// Engine. Operations are processed one at a time, in submission order, on
// the goroutine running Engine.Run. This ensures:
//   - At most one write context is open at any instant
//   - Writes are totally ordered by submission
//   - A failed operation never blocks the ones behind it
//
// Operation Processing Flow:
//  1. Submit stamps the operation with an ID and a sequence number and
//     appends it to the FIFO queue (never blocks)
//  2. Run dequeues the next operation
//  3. A write context is opened and the operation's action runs against it
//  4. On success the context is committed; on failure it is discarded
//  5. The operation's completion is called exactly once with the outcome
//
// Accepted operations always run: cancellation of Run's context stops
// intake and drains the queue instead of abandoning queued work.
//
// Logical Clock:
// Operations are stamped with a monotonic seq from Clock.Next(), used for
// logging and diagnostics. Wall-clock time is only used for metrics.
package engine
