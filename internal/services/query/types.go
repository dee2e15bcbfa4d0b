package query

import (
	"github.com/google/uuid"

	"mnemosyne/internal/adapters/ai"
)

// Options tunes one query. Zero values fall back to the service defaults.
type Options struct {
	// ModelID selects a registered model; empty resolves the registry default
	ModelID string

	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	// History is caller-supplied prior conversation, oldest first. The
	// orchestrator never persists it; its token weight is reserved out of
	// the context budget.
	History []ai.Message

	// Provider carries provider-specific knobs, validated by the connector
	Provider ai.ProviderOptions

	// IncludeMetadata attaches token and packing details to the result
	IncludeMetadata bool

	// UserID attributes usage events, optional
	UserID uuid.UUID
}

// ItemRef identifies one packed content item in result metadata
type ItemRef struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Relevance float64   `json:"relevance"`
}

// Metadata details the token accounting of one answered query
type Metadata struct {
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	ContextItems     []ItemRef `json:"context_items"`
}

// Result is the response to one blocking query
type Result struct {
	ID           uuid.UUID `json:"id"`
	Query        string    `json:"query"`
	Response     string    `json:"response"`
	ContextID    uuid.UUID `json:"context_id"`
	ModelID      string    `json:"model_id"`
	FallbackUsed bool      `json:"fallback_used,omitempty"`
	Metadata     *Metadata `json:"metadata,omitempty"`
}
