/*
Package metrics provides Prometheus metrics collection and exposition for
graphkeep, plus health/readiness/liveness HTTP handlers.

Metrics are package-level variables registered at init time and updated by
the components that own them (pkg/graphstore, pkg/eventstore, pkg/snapshot,
pkg/broadcaster) or periodically by Collector; pkg/inference does not
update the Inference* metrics. Handler
exposes them for Prometheus scraping; HealthHandler, ReadyHandler, and
LivenessHandler back the host process's /health, /ready, and /live
endpoints.
*/
package metrics
