package api

import (
	"net/http"
	"strconv"
	"time"

	"mnemosyne/internal/domain/usage"
	"mnemosyne/pkg/logger"
)

// UsageHandler exposes usage aggregates from the analytics store
type UsageHandler struct {
	repo usage.Repository
	log  *logger.Logger
}

// NewUsageHandler creates a usage handler
func NewUsageHandler(repo usage.Repository) *UsageHandler {
	return &UsageHandler{
		repo: repo,
		log:  logger.Get().With("component", "usage_handler"),
	}
}

// HandleTotals answers GET /api/usage. Accepts ?days=N (default 30) and
// ?contexts=N (default 20, cap on the per-context breakdown).
func (h *UsageHandler) HandleTotals(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days <= 0 || days > 365 {
		days = 30
	}
	contextLimit := queryInt(r, "contexts", 20)
	if contextLimit <= 0 || contextLimit > 100 {
		contextLimit = 20
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	byModel, err := h.repo.TotalsByModel(r.Context(), since)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	byDay, err := h.repo.TotalsByDay(r.Context(), since)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	byContext, err := h.repo.TotalsByContext(r.Context(), since, contextLimit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"since":      since,
		"by_model":   byModel,
		"by_day":     byDay,
		"by_context": byContext,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
