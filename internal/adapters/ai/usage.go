package ai

import (
	"sync"
	"time"
)

// latencyWindowSize caps the per-model latency sample window. Older samples
// are overwritten once the window is full.
const latencyWindowSize = 100

// UsageSample is one completed call against a model, recorded after the
// provider responds (or fails).
type UsageSample struct {
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	Err              error
}

// ModelMetrics accumulates usage counters for a single model. All methods
// are safe for concurrent use; each model carries its own lock so recording
// against one model never blocks recording against another.
type ModelMetrics struct {
	mu sync.Mutex

	requestCount     int64
	errorCount       int64
	promptTokens     int64
	completionTokens int64

	latencies []time.Duration
	cursor    int
}

func newModelMetrics() *ModelMetrics {
	return &ModelMetrics{latencies: make([]time.Duration, 0, latencyWindowSize)}
}

// Record folds one sample into the counters and the latency window
func (m *ModelMetrics) Record(sample UsageSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCount++
	if sample.Err != nil {
		m.errorCount++
	}
	m.promptTokens += int64(sample.PromptTokens)
	m.completionTokens += int64(sample.CompletionTokens)

	if len(m.latencies) < latencyWindowSize {
		m.latencies = append(m.latencies, sample.Latency)
		return
	}
	m.latencies[m.cursor] = sample.Latency
	m.cursor = (m.cursor + 1) % latencyWindowSize
}

// Snapshot returns a point-in-time copy of the counters
func (m *ModelMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		RequestCount:     m.requestCount,
		ErrorCount:       m.errorCount,
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
	}

	if len(m.latencies) > 0 {
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		snap.AvgLatency = total / time.Duration(len(m.latencies))
		snap.LatencySamples = len(m.latencies)
	}
	return snap
}

// MetricsSnapshot is an immutable view of one model's accumulated usage.
// AvgLatency covers only the most recent window of calls, not the full
// request history.
type MetricsSnapshot struct {
	ModelID          string        `json:"model_id"`
	RequestCount     int64         `json:"request_count"`
	ErrorCount       int64         `json:"error_count"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	AvgLatency       time.Duration `json:"avg_latency"`
	LatencySamples   int           `json:"latency_samples"`
}

// TotalTokens is the combined prompt and completion token count
func (s MetricsSnapshot) TotalTokens() int64 {
	return s.PromptTokens + s.CompletionTokens
}

// ErrorRate is the fraction of requests that failed, 0 when nothing recorded
func (s MetricsSnapshot) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.RequestCount)
}
