package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"mnemosyne/internal/adapters/ai"
	"mnemosyne/internal/metrics"
	"mnemosyne/internal/services/query"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// QueryHandler serves the query endpoints
type QueryHandler struct {
	queries *query.Service
	log     *logger.Logger
}

// NewQueryHandler creates a query handler
func NewQueryHandler(queries *query.Service) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		log:     logger.Get().With("component", "query_handler"),
	}
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryRequest struct {
	Query           string             `json:"query"`
	ContextID       uuid.UUID          `json:"context_id"`
	Model           string             `json:"model,omitempty"`
	Stream          bool               `json:"stream,omitempty"`
	Temperature     float64            `json:"temperature,omitempty"`
	MaxTokens       int                `json:"max_tokens,omitempty"`
	SystemPrompt    string             `json:"system_prompt,omitempty"`
	IncludeMetadata bool               `json:"include_metadata,omitempty"`
	History         []historyMessage   `json:"history,omitempty"`
	Provider        ai.ProviderOptions `json:"provider_options,omitempty"`
	UserID          uuid.UUID          `json:"user_id,omitempty"`
}

func (r queryRequest) options() query.Options {
	opts := query.Options{
		ModelID:         r.Model,
		Temperature:     r.Temperature,
		MaxTokens:       r.MaxTokens,
		SystemPrompt:    r.SystemPrompt,
		Provider:        r.Provider,
		IncludeMetadata: r.IncludeMetadata,
		UserID:          r.UserID,
	}
	for _, m := range r.History {
		opts.History = append(opts.History, ai.Message{Role: ai.MessageRole(m.Role), Content: m.Content})
	}
	return opts
}

// HandleQuery answers POST /api/query. With "stream": true the response is
// delivered as server-sent events, one JSON event per frame; otherwise a
// single JSON result.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	if req.Stream {
		h.streamSSE(w, r, req)
		return
	}

	result, err := h.queries.ProcessQuery(r.Context(), req.Query, req.ContextID, req.options())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *QueryHandler) streamSSE(w http.ResponseWriter, r *http.Request, req queryRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.log, errors.Wrap(errors.ErrInvalidInput, "response writer does not support streaming"))
		return
	}

	events, err := h.queries.StreamQuery(r.Context(), req.Query, req.ContextID, req.options())
	if err != nil {
		// Argument errors surface before the stream opens
		writeError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for event := range events {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if err := enc.Encode(event); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
		metrics.RecordStreamEvent(string(event.Type))
	}
}
