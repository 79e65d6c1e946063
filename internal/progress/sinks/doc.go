// Package sinks implements concrete snapshot consumers: structured logging,
// Prometheus collectors, repository-backed session history, Pub/Sub outcome
// notifications and transcript archives. Each sink satisfies progress.Sink and
// is safe for repeated Consume/Close cycles.
package sinks
