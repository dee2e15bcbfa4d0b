package api

import (
	"encoding/json"
	"net/http"

	"mnemosyne/internal/adapters/ai"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain failures onto HTTP statuses. Provider internals are
// reduced to their kind; everything unclassified is a plain 500.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
		return
	}

	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input"})
	case errors.Is(err, errors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		if pe, ok := ai.AsProviderError(err); ok {
			status := http.StatusBadGateway
			switch pe.Kind {
			case ai.ErrorKindRateLimit:
				status = http.StatusTooManyRequests
			case ai.ErrorKindTimeout:
				status = http.StatusGatewayTimeout
			}
			writeJSON(w, status, errorResponse{Error: "model provider error: " + string(pe.Kind)})
			return
		}
		log.Errorw("Unhandled API error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationError("body", "malformed request body", err.Error())
	}
	return nil
}
