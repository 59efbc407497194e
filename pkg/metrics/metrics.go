package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	DevicesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_devices_total",
			Help: "Total number of edge devices by status",
		},
		[]string{"status"},
	)

	MinersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_miners_total",
			Help: "Total number of hosting miners by capability level",
		},
		[]string{"capability_level"},
	)

	SecretsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_secrets_total",
			Help: "Total number of miner secret envelopes stored",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_requests_total",
			Help: "Total number of cloud API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_api_request_duration_seconds",
			Help:    "Cloud API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Capability gate metrics
	CapabilityDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_capability_denials_total",
			Help: "Total number of secret pulls denied by the capability gate, by reason",
		},
		[]string{"reason"},
	)

	// Secret lifecycle metrics
	SecretCounterRegressionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_secret_counter_regressions_total",
			Help: "Total number of rejected secret uploads with a non-increasing counter",
		},
	)

	SecretKeyVersionMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_secret_key_version_mismatches_total",
			Help: "Total number of rejected secret uploads whose key_version did not match the device's current key_version",
		},
	)

	// Command queue metrics
	CommandsQueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_commands_queued_total",
			Help: "Total number of commands enqueued by type",
		},
		[]string{"command_type"},
	)

	CommandsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_commands_completed_total",
			Help: "Total number of commands that reached a terminal status",
		},
		[]string{"status"},
	)

	CommandExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_command_execution_duration_seconds",
			Help:    "Per-target command execution time on the edge, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Telemetry promotion job metrics
	TelemetryPromotionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_telemetry_promotion_duration_seconds",
			Help:    "Time taken for a telemetry promotion job cycle, by layer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"layer"},
	)

	TelemetryRowsPromotedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_rows_promoted_total",
			Help: "Total number of rows written by a telemetry promotion job, by layer",
		},
		[]string{"layer"},
	)

	TelemetryRowsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_rows_pruned_total",
			Help: "Total number of rows deleted by a telemetry retention job, by layer",
		},
		[]string{"layer"},
	)

	// Scanner metrics
	ScanJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_scan_jobs_total",
			Help: "Total number of IP-range scan jobs, by terminal status",
		},
		[]string{"status"},
	)

	ScanDiscoveredMinersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_scan_discovered_miners_total",
			Help: "Total number of miners discovered across all scan jobs",
		},
	)

	ScanProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_scan_probe_duration_seconds",
			Help:    "Per-host probe duration during an IP-range scan, in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
		},
	)

	// Edge runtime metrics
	EdgePollCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_edge_poll_cycles_total",
			Help: "Total number of edge command poll cycles started",
		},
	)

	EdgeAdapterExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_edge_adapter_executions_total",
			Help: "Total number of adapter command executions on the edge, by command type and result",
		},
		[]string{"command_type", "result"},
	)

	EdgeDedupSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_edge_dedup_skips_total",
			Help: "Total number of commands skipped on the edge because their id was already executed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DevicesTotal,
		MinersTotal,
		SecretsTotal,
		APIRequestsTotal,
		APIRequestDuration,
		CapabilityDenialsTotal,
		SecretCounterRegressionsTotal,
		SecretKeyVersionMismatchesTotal,
		CommandsQueuedTotal,
		CommandsCompletedTotal,
		CommandExecutionDuration,
		TelemetryPromotionDuration,
		TelemetryRowsPromotedTotal,
		TelemetryRowsPrunedTotal,
		ScanJobsTotal,
		ScanDiscoveredMinersTotal,
		ScanProbeDuration,
		EdgePollCyclesTotal,
		EdgeAdapterExecutionsTotal,
		EdgeDedupSkipsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording it to a
// histogram once it completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vector.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
