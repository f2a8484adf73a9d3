package websocket

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CinitSwift/divide/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bearer token is the access control; origin checks add nothing
	// for token-carrying clients.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades GET /api/ws requests and runs the connection.
type Handler struct {
	gateway *Gateway
	logger  *slog.Logger
}

func NewHandler(gateway *Gateway, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{gateway: gateway, logger: logger.With("component", "websocket")}
}

// ServeHTTP runs behind the auth middleware, so the caller is already
// resolved. A ?channel= query parameter subscribes the connection
// immediately, saving the client a round trip.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	initial := r.URL.Query().Get("channel")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.gateway, conn, userID, h.logger)
	h.gateway.register(client)

	// The request context dies when ServeHTTP returns; the connection
	// needs its own lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if initial != "" {
		h.gateway.subscribe(ctx, client, initial)
	}

	go client.writePump(ctx)
	client.readPump(ctx)
}
