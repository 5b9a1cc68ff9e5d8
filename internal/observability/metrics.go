package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ads examined per scan type
	AdsScannedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admod_ads_scanned_total",
			Help: "Total ads examined by the scanner",
		},
		[]string{"scan_type"},
	)

	// ads flagged for review, labelled by risk level
	AdsFlaggedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admod_ads_flagged_total",
			Help: "Total ads flagged for review",
		},
		[]string{"risk_level"},
	)

	// external AI moderation requests by outcome (success/failure)
	ExternalRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admod_external_requests_total",
			Help: "Total requests to the external AI moderation service",
		},
		[]string{"outcome"},
	)

	// external AI moderation request latency
	ExternalRequestLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admod_external_request_duration_seconds",
			Help:    "Histogram of external moderation request latencies",
			Buckets: prometheus.DefBuckets,
		},
	)

	// verdicts produced, labelled by source (external_ai/local_rules)
	VerdictCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admod_verdicts_total",
			Help: "Total moderation verdicts produced",
		},
		[]string{"source"},
	)

	// scan cycle wall time per scan type
	ScanCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admod_scan_cycle_duration_seconds",
			Help:    "Histogram of scan cycle durations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"scan_type"},
	)

	// violation records written
	ViolationsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admod_violations_persisted_total",
			Help: "Total violation records persisted",
		},
	)

	// violation persistence failures
	ViolationPersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admod_violation_persist_errors_total",
			Help: "Total violation persistence errors",
		},
	)

	// scan invocations rejected because another run held the lock
	LockContentionCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admod_lock_contention_total",
			Help: "Total scan invocations rejected by a live run lock",
		},
	)
)

// MustRegister registers all collectors with the default registry. Call once
// at process startup.
func MustRegister() {
	prometheus.MustRegister(
		AdsScannedCount,
		AdsFlaggedCount,
		ExternalRequestCount,
		ExternalRequestLatency,
		VerdictCount,
		ScanCycleDuration,
		ViolationsPersisted,
		ViolationPersistErrors,
		LockContentionCount,
	)
}
