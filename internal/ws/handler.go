package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"watchparty/internal/peer"
	"watchparty/internal/session"
)

// Handler upgrades HTTP requests and attaches the websocket as a
// coordinator peer speaking the regular message catalog.
type Handler struct {
	coordinator *session.Coordinator
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

func NewHandler(coordinator *session.Coordinator, log *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.Info("websocket: upgrading connection", "remote", r.RemoteAddr)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered the request
		h.log.Warn("websocket: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := h.coordinator.NewPeer(peer.NewWebSocketTransport(conn))
	h.coordinator.Serve(r.Context(), p)
}
