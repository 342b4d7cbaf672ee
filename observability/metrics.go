package observability

import (
	"sync"
	"time"
)

// Metrics defines the interface for collecting router and tool metrics
type Metrics interface {
	// IncrementRequests increments the request counter
	IncrementRequests(labels map[string]string)

	// RecordLatency records request latency
	RecordLatency(duration time.Duration, labels map[string]string)

	// IncrementTokensUsed increments token usage counter
	IncrementTokensUsed(tokens int, labels map[string]string)

	// RecordError increments error counter
	RecordError(errorType string, labels map[string]string)

	// RecordToolCall counts one invoker call by capability and outcome
	// ("success" or a failure reason).
	RecordToolCall(capability, outcome string, duration time.Duration)

	// RecordRoute counts one terminal router outcome.
	RecordRoute(state string, specialists int)
}

// NoOpMetrics is a no-operation implementation of Metrics
type NoOpMetrics struct{}

func (n *NoOpMetrics) IncrementRequests(labels map[string]string)                     {}
func (n *NoOpMetrics) RecordLatency(duration time.Duration, labels map[string]string) {}
func (n *NoOpMetrics) IncrementTokensUsed(tokens int, labels map[string]string)       {}
func (n *NoOpMetrics) RecordError(errorType string, labels map[string]string)         {}
func (n *NoOpMetrics) RecordToolCall(capability, outcome string, dur time.Duration)   {}
func (n *NoOpMetrics) RecordRoute(state string, specialists int)                      {}

// CountingMetrics is an in-memory collector, mostly for tests.
type CountingMetrics struct {
	mu        sync.Mutex
	requests  int64
	latency   time.Duration
	tokens    int64
	errors    map[string]int64
	toolCalls map[string]int64
	routes    map[string]int64
}

// NewCountingMetrics creates an empty CountingMetrics.
func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{
		errors:    make(map[string]int64),
		toolCalls: make(map[string]int64),
		routes:    make(map[string]int64),
	}
}

func (m *CountingMetrics) IncrementRequests(labels map[string]string) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
}

func (m *CountingMetrics) RecordLatency(duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	m.latency += duration
	m.mu.Unlock()
}

func (m *CountingMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {
	m.mu.Lock()
	m.tokens += int64(tokens)
	m.mu.Unlock()
}

func (m *CountingMetrics) RecordError(errorType string, labels map[string]string) {
	m.mu.Lock()
	m.errors[errorType]++
	m.mu.Unlock()
}

func (m *CountingMetrics) RecordToolCall(capability, outcome string, duration time.Duration) {
	m.mu.Lock()
	m.toolCalls[capability+"/"+outcome]++
	m.mu.Unlock()
}

func (m *CountingMetrics) RecordRoute(state string, specialists int) {
	m.mu.Lock()
	m.routes[state]++
	m.mu.Unlock()
}

// ToolCalls returns how many calls were recorded for capability/outcome.
func (m *CountingMetrics) ToolCalls(capability, outcome string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolCalls[capability+"/"+outcome]
}

// Routes returns how many outcomes ended in state.
func (m *CountingMetrics) Routes(state string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routes[state]
}

// Errors returns the error count for errorType.
func (m *CountingMetrics) Errors(errorType string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[errorType]
}

// Requests returns the request count.
func (m *CountingMetrics) Requests() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

var _ Metrics = (*NoOpMetrics)(nil)
var _ Metrics = (*CountingMetrics)(nil)
