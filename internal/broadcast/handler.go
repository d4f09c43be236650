package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler serves status streams from hub. WebSocket upgrades are limited
// to allowedOrigins; an empty list accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[strings.ToLower(origin)]
				return ok
			},
		},
	}
}

// HandleEvents streams an order's status events as Server-Sent Events until
// the client goes away.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, `{"message":"Missing order id"}`, http.StatusBadRequest)
		return
	}

	sub := h.hub.Subscribe(r.Context(), id, NewSSEListener(w))
	h.logger.Info("sse stream opened", "order_id", id)
	<-sub.Done()
	h.logger.Info("sse stream closed", "order_id", id)
}

// HandleWebSocket streams the same events over a WebSocket. Inbound messages
// are read and discarded only to notice when the peer closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, `{"message":"Missing order id"}`, http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "order_id", id)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := h.hub.Subscribe(ctx, id, NewWSListener(conn))
	h.logger.Info("websocket stream opened", "order_id", id)
	<-sub.Done()
	h.logger.Info("websocket stream closed", "order_id", id)
}
