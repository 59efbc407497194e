// Package metrics defines and registers the Prometheus instrumentation for
// the fleet control plane and its CLIs: device/miner gauges kept current by
// Collector, capability-gate and secret-lifecycle counters (registered, but
// no code in this module increments them), command-queue and
// telemetry-promotion histograms,
// scanner and edge-runtime counters, plus the HealthChecker used for
// /health, /ready and /live.
//
// Everything registers against the default Prometheus registry in init, and
// Handler exposes it for scraping.
package metrics
