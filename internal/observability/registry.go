package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive a registry by injection rather than touching the global
// Prometheus collectors directly.
type MetricsRegistry interface {
	// Scanner metrics
	IncrementAdsScanned(scanType string)
	IncrementAdsFlagged(riskLevel string)
	RecordScanCycleDuration(scanType string, duration time.Duration)
	IncrementLockContention()

	// External moderation service metrics
	IncrementExternalRequests(outcome string)
	RecordExternalRequestLatency(duration time.Duration)

	// Verdict metrics
	IncrementVerdicts(source string)

	// Persistence metrics
	IncrementViolationsPersisted()
	IncrementViolationPersistErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus
// collectors defined in metrics.go.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementAdsScanned(scanType string) {
	AdsScannedCount.WithLabelValues(scanType).Inc()
}

func (r *PrometheusRegistry) IncrementAdsFlagged(riskLevel string) {
	AdsFlaggedCount.WithLabelValues(riskLevel).Inc()
}

func (r *PrometheusRegistry) RecordScanCycleDuration(scanType string, duration time.Duration) {
	ScanCycleDuration.WithLabelValues(scanType).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementLockContention() {
	LockContentionCount.Inc()
}

func (r *PrometheusRegistry) IncrementExternalRequests(outcome string) {
	ExternalRequestCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordExternalRequestLatency(duration time.Duration) {
	ExternalRequestLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementVerdicts(source string) {
	VerdictCount.WithLabelValues(source).Inc()
}

func (r *PrometheusRegistry) IncrementViolationsPersisted() {
	ViolationsPersisted.Inc()
}

func (r *PrometheusRegistry) IncrementViolationPersistErrors() {
	ViolationPersistErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods. Used when
// metrics collection is disabled, e.g. one-shot CLI scans.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementAdsScanned(scanType string)                              {}
func (r *NoOpRegistry) IncrementAdsFlagged(riskLevel string)                             {}
func (r *NoOpRegistry) RecordScanCycleDuration(scanType string, duration time.Duration)  {}
func (r *NoOpRegistry) IncrementLockContention()                                         {}
func (r *NoOpRegistry) IncrementExternalRequests(outcome string)                         {}
func (r *NoOpRegistry) RecordExternalRequestLatency(duration time.Duration)              {}
func (r *NoOpRegistry) IncrementVerdicts(source string)                                  {}
func (r *NoOpRegistry) IncrementViolationsPersisted()                                    {}
func (r *NoOpRegistry) IncrementViolationPersistErrors()                                 {}
