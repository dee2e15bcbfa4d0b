package api

import (
	"net/http"

	"github.com/dustin/go-humanize"

	"mnemosyne/internal/adapters/ai"
	"mnemosyne/pkg/logger"
)

// ModelsHandler exposes the registered models and their usage counters
type ModelsHandler struct {
	registry *ai.Registry
	log      *logger.Logger
}

// NewModelsHandler creates a models handler
func NewModelsHandler(registry *ai.Registry) *ModelsHandler {
	return &ModelsHandler{
		registry: registry,
		log:      logger.Get().With("component", "models_handler"),
	}
}

type modelMetricsView struct {
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	ErrorRate    float64 `json:"error_rate"`
	TotalTokens  int64   `json:"total_tokens"`
	TokensPretty string  `json:"tokens_pretty"`
	AvgLatencyMs int64   `json:"avg_latency_ms"`
}

type modelView struct {
	ID               string           `json:"id"`
	Provider         string           `json:"provider"`
	Family           string           `json:"family"`
	MaxContextTokens int              `json:"max_context_tokens"`
	Capabilities     []string         `json:"capabilities"`
	Default          bool             `json:"default"`
	Metrics          modelMetricsView `json:"metrics"`
}

// HandleList answers GET /api/models
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	defaultID := h.registry.DefaultID()
	descriptors := h.registry.Descriptors()

	views := make([]modelView, 0, len(descriptors))
	for _, d := range descriptors {
		view := modelView{
			ID:               d.ID,
			Provider:         d.Provider.String(),
			Family:           d.Family,
			MaxContextTokens: d.MaxContextTokens,
			Capabilities:     d.Capabilities,
			Default:          d.ID == defaultID,
		}
		if snap, err := h.registry.MetricsSnapshot(d.ID); err == nil {
			view.Metrics = modelMetricsView{
				Requests:     snap.RequestCount,
				Errors:       snap.ErrorCount,
				ErrorRate:    snap.ErrorRate(),
				TotalTokens:  snap.TotalTokens(),
				TokensPretty: humanize.Comma(snap.TotalTokens()),
				AvgLatencyMs: snap.AvgLatency.Milliseconds(),
			}
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":  views,
		"default": defaultID,
	})
}
