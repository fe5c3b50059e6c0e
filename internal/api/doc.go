// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /admin for the static admin page.
//   - /v1/entities for registration, configuration, refresh, and reads.
//   - GET /v1/entities/{identity}/stats for the automation-facing view,
//     which always answers 200 with a well-formed body.
package api
