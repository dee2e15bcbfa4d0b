package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mnemosyne/internal/metrics"
	"mnemosyne/internal/services/query"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

const (
	socketWriteTimeout = 10 * time.Second
	socketReadTimeout  = 30 * time.Second
)

// StreamHandler serves streamed answers over a websocket. The client sends
// one query request as JSON and receives the event frames back, ending with
// an end or error frame.
type StreamHandler struct {
	queries  *query.Service
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewStreamHandler creates a websocket stream handler
func NewStreamHandler(queries *query.Service) *StreamHandler {
	return &StreamHandler{
		queries: queries,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logger.Get().With("component", "stream_handler"),
	}
}

// HandleSocket answers GET /api/query/stream
func (h *StreamHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("Websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(socketReadTimeout))

	var req queryRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeEvent(conn, query.Event{Type: query.EventError, Content: "malformed query request"})
		return
	}

	events, err := h.queries.StreamQuery(r.Context(), req.Query, req.ContextID, req.options())
	if err != nil {
		h.writeEvent(conn, query.Event{Type: query.EventError, Content: socketErrorMessage(err)})
		return
	}

	for event := range events {
		if !h.writeEvent(conn, event) {
			// Consumer went away; draining lets the producer observe the
			// cancelled request context and stop
			for range events {
			}
			return
		}
		metrics.RecordStreamEvent(string(event.Type))
	}

	deadline := time.Now().Add(socketWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func (h *StreamHandler) writeEvent(conn *websocket.Conn, event query.Event) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := conn.WriteJSON(event); err != nil {
		h.log.Debugw("Websocket write failed", "error", err)
		return false
	}
	return true
}

func socketErrorMessage(err error) string {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, errors.ErrNotFound) {
		return "context or model not found"
	}
	return "query could not be started"
}
