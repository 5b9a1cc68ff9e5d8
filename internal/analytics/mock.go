package analytics

import (
	"context"
	"sync"
)

var _ ScanEventLogger = (*MockScanEventLogger)(nil)

// MockScanEventLogger is an in-memory ScanEventLogger for tests.
type MockScanEventLogger struct {
	mu     sync.Mutex
	Events []ScanEvent
}

// NewMockScanEventLogger creates an empty mock logger.
func NewMockScanEventLogger() *MockScanEventLogger {
	return &MockScanEventLogger{}
}

// RecordScanEvent appends the event to the in-memory list.
func (m *MockScanEventLogger) RecordScanEvent(ctx context.Context, ev ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

// Recorded returns a copy of the events recorded so far.
func (m *MockScanEventLogger) Recorded() []ScanEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScanEvent, len(m.Events))
	copy(out, m.Events)
	return out
}
