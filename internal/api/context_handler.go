package api

import (
	"net/http"

	"github.com/google/uuid"

	"mnemosyne/internal/domain/chatctx"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// ContextHandler serves context and content item CRUD
type ContextHandler struct {
	contexts *chatctx.Service
	log      *logger.Logger
}

// NewContextHandler creates a context handler
func NewContextHandler(contexts *chatctx.Service) *ContextHandler {
	return &ContextHandler{
		contexts: contexts,
		log:      logger.Get().With("component", "context_handler"),
	}
}

type contextRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
}

type itemRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Kind  string `json:"kind,omitempty"`
}

// HandleCreate answers POST /api/contexts
func (h *ContextHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Name == "" {
		writeError(w, h.log, errors.NewValidationError("name", "name is required", req.Name))
		return
	}

	c := &chatctx.Context{
		Name:        req.Name,
		Description: req.Description,
		UserID:      req.UserID,
	}
	if err := h.contexts.CreateContext(r.Context(), c); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleList answers GET /api/contexts, optionally filtered by user_id
func (h *ContextHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var userID uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, h.log, errors.NewValidationError("user_id", "malformed user id", raw))
			return
		}
		userID = parsed
	}

	list, err := h.contexts.ListContexts(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet answers GET /api/contexts/{id}
func (h *ContextHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.contexts.GetContext(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleUpdate answers PUT /api/contexts/{id}
func (h *ContextHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req contextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	c, err := h.contexts.GetContext(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	c.Name = req.Name
	c.Description = req.Description

	if err := h.contexts.UpdateContext(r.Context(), c); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleDelete answers DELETE /api/contexts/{id}. Content items go with the
// context.
func (h *ContextHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.contexts.DeleteContext(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddItem answers POST /api/contexts/{id}/items
func (h *ContextHandler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	contextID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req itemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	item := &chatctx.ContentItem{
		ContextID: contextID,
		Title:     req.Title,
		Body:      req.Body,
		Kind:      chatctx.ContentKind(req.Kind),
	}
	if err := h.contexts.AddItem(r.Context(), item); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandleListItems answers GET /api/contexts/{id}/items
func (h *ContextHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	contextID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := h.contexts.ListItems(r.Context(), contextID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleGetItem answers GET /api/contexts/{id}/items/{itemID}
func (h *ContextHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	contextID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.contexts.GetItem(r.Context(), itemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if item.ContextID != contextID {
		writeError(w, h.log, errors.Wrap(errors.ErrNotFound, "item belongs to another context"))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDeleteItem answers DELETE /api/contexts/{id}/items/{itemID}
func (h *ContextHandler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	contextID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.contexts.GetItem(r.Context(), itemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if item.ContextID != contextID {
		writeError(w, h.log, errors.Wrap(errors.ErrNotFound, "item belongs to another context"))
		return
	}

	if err := h.contexts.DeleteItem(r.Context(), itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContextHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, h.log, errors.NewValidationError(name, "malformed id", r.PathValue(name)))
		return uuid.Nil, false
	}
	return id, true
}
