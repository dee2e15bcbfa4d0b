package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Query orchestration metrics
	QueryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemosyne_query_requests_total",
			Help: "Total number of orchestrated queries",
		},
		[]string{"model", "mode", "status"}, // mode: blocking|stream, status: success|error
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemosyne_query_duration_seconds",
			Help:    "End-to-end query duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "mode"},
	)

	// Provider call metrics
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemosyne_provider_calls_total",
			Help: "Total number of model provider calls",
		},
		[]string{"provider", "model", "status"}, // status: success|error
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemosyne_provider_latency_seconds",
			Help:    "Model provider call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "model"},
	)

	ProviderTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemosyne_provider_tokens_total",
			Help: "Total tokens consumed per model",
		},
		[]string{"model", "type"}, // type: prompt|completion
	)

	ProviderCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemosyne_provider_cost_usd",
			Help: "Total model spend in USD",
		},
		[]string{"provider", "model"},
	)

	// Context packing metrics
	PackedItems = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemosyne_packed_items",
			Help:    "Content items per packed prompt",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"outcome"}, // outcome: included|skipped
	)

	PackedTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mnemosyne_packed_context_tokens",
			Help:    "Context tokens per packed prompt",
			Buckets: []float64{0, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768},
		},
	)

	// Stream metrics
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemosyne_stream_events_total",
			Help: "Total stream relay events delivered",
		},
		[]string{"type"}, // type: start|chunk|end|error
	)
)

// Init registers all metrics with the default registry
func Init() {
	prometheus.MustRegister(QueryRequests)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(ProviderCalls)
	prometheus.MustRegister(ProviderLatency)
	prometheus.MustRegister(ProviderTokens)
	prometheus.MustRegister(ProviderCost)
	prometheus.MustRegister(PackedItems)
	prometheus.MustRegister(PackedTokens)
	prometheus.MustRegister(StreamEvents)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordQuery records one orchestrated query
func RecordQuery(model, mode, status string, duration time.Duration) {
	QueryRequests.WithLabelValues(model, mode, status).Inc()
	QueryDuration.WithLabelValues(model, mode).Observe(duration.Seconds())
}

// RecordProviderCall records one completed provider call
func RecordProviderCall(provider, model, status string, latency time.Duration) {
	ProviderCalls.WithLabelValues(provider, model, status).Inc()
	ProviderLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordTokens records token consumption for one call
func RecordTokens(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		ProviderTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ProviderTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordCost records model spend for one call
func RecordCost(provider, model string, usd float64) {
	if usd > 0 {
		ProviderCost.WithLabelValues(provider, model).Add(usd)
	}
}

// RecordPacking records the outcome of one packing pass
func RecordPacking(included, skipped, usedTokens int) {
	PackedItems.WithLabelValues("included").Observe(float64(included))
	if skipped > 0 {
		PackedItems.WithLabelValues("skipped").Observe(float64(skipped))
	}
	PackedTokens.Observe(float64(usedTokens))
}

// RecordStreamEvent records one delivered stream event
func RecordStreamEvent(eventType string) {
	StreamEvents.WithLabelValues(eventType).Inc()
}
