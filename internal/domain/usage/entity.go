package usage

import "time"

// Record is one durable model usage row, written to ClickHouse by the
// usage consumer. The in-memory registry metrics remain the fast path;
// this table is the analytics complement.
type Record struct {
	Timestamp time.Time `ch:"timestamp"`
	EventID   string    `ch:"event_id"`

	QueryID   string `ch:"query_id"`
	UserID    string `ch:"user_id"`
	ContextID string `ch:"context_id"`

	Provider    string `ch:"provider"`
	ModelID     string `ch:"model_id"`
	ModelFamily string `ch:"model_family"`

	PromptTokens     uint32 `ch:"prompt_tokens"`
	CompletionTokens uint32 `ch:"completion_tokens"`
	TotalTokens      uint32 `ch:"total_tokens"`

	InputCostUSD  float64 `ch:"input_cost_usd"`
	OutputCostUSD float64 `ch:"output_cost_usd"`
	TotalCostUSD  float64 `ch:"total_cost_usd"`

	LatencyMs uint32 `ch:"latency_ms"`

	IsStream   bool `ch:"is_stream"`
	IsFallback bool `ch:"is_fallback"`
	IsSuccess  bool `ch:"is_success"`

	CreatedAt time.Time `ch:"created_at"`
}

// ModelTotals aggregates usage per model over a time range
type ModelTotals struct {
	Provider     string  `ch:"provider" json:"provider"`
	ModelID      string  `ch:"model_id" json:"model_id"`
	Requests     uint64  `ch:"requests" json:"requests"`
	Failures     uint64  `ch:"failures" json:"failures"`
	TotalTokens  uint64  `ch:"total_tokens" json:"total_tokens"`
	TotalCostUSD float64 `ch:"total_cost_usd" json:"total_cost_usd"`
	AvgLatencyMs float64 `ch:"avg_latency_ms" json:"avg_latency_ms"`
}

// DailyTotals aggregates usage per calendar day
type DailyTotals struct {
	Day          time.Time `ch:"day" json:"day"`
	Requests     uint64    `ch:"requests" json:"requests"`
	TotalTokens  uint64    `ch:"total_tokens" json:"total_tokens"`
	TotalCostUSD float64   `ch:"total_cost_usd" json:"total_cost_usd"`
}

// ContextTotals aggregates spend per context
type ContextTotals struct {
	ContextID    string  `ch:"context_id" json:"context_id"`
	Requests     uint64  `ch:"requests" json:"requests"`
	TotalTokens  uint64  `ch:"total_tokens" json:"total_tokens"`
	TotalCostUSD float64 `ch:"total_cost_usd" json:"total_cost_usd"`
}
