// Package progress turns the event stream of a multi-period search job into a
// single consistent view of its progress.
//
// The Aggregator is a pure state machine: every Event goes through Apply, which
// mutates the session, task and connection state and returns an immutable
// Snapshot. Apply performs no I/O and never fails; malformed input is applied
// partially and reported as a log line on the snapshot. The Hub batches
// snapshots on a background goroutine and fans them out to pluggable sinks such
// as loggers, Prometheus collectors, repositories or a terminal UI.
package progress
