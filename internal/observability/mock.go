package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry is a MetricsRegistry for tests. It counts calls so
// tests can assert on instrumentation without a Prometheus registry.
type MockMetricsRegistry struct {
	mu sync.Mutex

	AdsScanned           map[string]int
	AdsFlagged           map[string]int
	ExternalRequests     map[string]int
	Verdicts             map[string]int
	LockContentions      int
	PersistedViolations  int
	PersistErrors        int
	ScanCycleObservations int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		AdsScanned:       make(map[string]int),
		AdsFlagged:       make(map[string]int),
		ExternalRequests: make(map[string]int),
		Verdicts:         make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementAdsScanned(scanType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdsScanned[scanType]++
}

func (m *MockMetricsRegistry) IncrementAdsFlagged(riskLevel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdsFlagged[riskLevel]++
}

func (m *MockMetricsRegistry) RecordScanCycleDuration(scanType string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCycleObservations++
}

func (m *MockMetricsRegistry) IncrementLockContention() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockContentions++
}

func (m *MockMetricsRegistry) IncrementExternalRequests(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExternalRequests[outcome]++
}

func (m *MockMetricsRegistry) RecordExternalRequestLatency(duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementVerdicts(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verdicts[source]++
}

func (m *MockMetricsRegistry) IncrementViolationsPersisted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistedViolations++
}

func (m *MockMetricsRegistry) IncrementViolationPersistErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistErrors++
}
