package events

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent is the durable record of one completed model call. Published
// to Kafka after the in-memory registry metrics are updated; a lost event
// never blocks or fails the request that produced it.
type UsageEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	QueryID   string `json:"query_id"`
	UserID    string `json:"user_id,omitempty"`
	ContextID string `json:"context_id"`

	Provider    string `json:"provider"`
	ModelID     string `json:"model_id"`
	ModelFamily string `json:"model_family,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	InputCostUSD  float64 `json:"input_cost_usd"`
	OutputCostUSD float64 `json:"output_cost_usd"`
	TotalCostUSD  float64 `json:"total_cost_usd"`

	LatencyMs int64 `json:"latency_ms"`

	Stream   bool   `json:"stream"`
	Fallback bool   `json:"fallback"`
	Success  bool   `json:"success"`
	ErrorMsg string `json:"error,omitempty"`
}

// NewUsageEvent creates a usage event with identity and timestamp set
func NewUsageEvent() *UsageEvent {
	return &UsageEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}
