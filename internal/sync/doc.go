// Package sync runs the per-folder synchronization pipeline.
//
// A folder pass lists the source container, classifies every listed item
// against the stored records of the folder, soft-deletes records whose item
// disappeared, fetches and parses new and changed items in parallel, applies
// the resulting writes serially, and regenerates the folder artifact.
//
// # Change detection
//
// The Detector compares a fingerprint of each listing entry with the stored
// record and classifies the item as new, changed, unchanged or removed.
// Unchanged items are never fetched, parsed or written.
//
// # Failure isolation
//
// Errors of a single item stay at the item boundary:
//
//   - Transient source errors leave the record untouched; the item is picked up
//     again on the next cycle.
//   - Parse failures mark the record in error and count toward the retry bound
//     of the retry package.
//   - A failed write of one record is logged and the folder continues.
//
// Failures that prevent the folder pass itself (invalid configuration, a
// listing failure, an unreachable store) are returned as *Error.
//
// The coordinator subpackage schedules cycles and runs tenants in a bounded
// worker pool.
package sync
