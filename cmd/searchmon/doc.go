// Package main implements the searchmon CLI. It follows a period search job
// running on a remote backend: events arrive over a websocket channel, are
// reconciled into progress snapshots, and are fanned out to logs, metrics,
// session history, transcripts, outcome notifications, and either an HTTP
// API (serve) or a terminal dashboard (watch).
package main
