/*
Package metrics defines and registers ballast's Prometheus metrics using
github.com/prometheus/client_golang, and exposes them via Handler for
scraping.

Metrics are grouped by component: backend/load-balancer gauges and
histograms, circuit-breaker state and transition counters, rate-limiter
allow/deny counters, hash-ring move counters, task-queue depth and
duration histograms, and hedge-request winner counters. All are registered
at package init, a single package-level var block plus an init()
MustRegister pass.

Timer is a small helper for observing a histogram from a deferred call:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BackendLatencySeconds, id)

health.go additionally exposes a lightweight /health, /ready, /live trio
independent of Prometheus, for embedding in the demo CLI's HTTP server.
*/
package metrics
