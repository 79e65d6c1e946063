// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search/status and /v1/search/log for the live session.
//   - POST /v1/search/start and /v1/search/stop to control the backend job.
//   - GET /v1/runs and /v1/runs/{session_id} for session history via the
//     SessionRepository interface.
package api
