// Package api hosts the HTTP server, middleware and handlers for the watcher.
// Routes:
//   - GET /?secret= runs a check and reports its outcome.
//   - GET /send-test-message?secret= pushes a test alert.
//   - GET /heartbeat and /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
