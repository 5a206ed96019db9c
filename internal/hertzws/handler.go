package hertzws

import (
	"context"
	"log/slog"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"

	"watchparty/internal/peer"
	"watchparty/internal/session"
)

// Handler WebSocket处理器，将连接作为协调器成员接入
type Handler struct {
	coordinator *session.Coordinator
	upgrader    websocket.HertzUpgrader
	log         *slog.Logger
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(coordinator *session.Coordinator, log *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		log:         log,
		upgrader: websocket.HertzUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(ctx *app.RequestContext) bool {
				return true
			},
		},
	}
}

// HandleWebSocket 处理WebSocket连接
func (h *Handler) HandleWebSocket(c context.Context, ctx *app.RequestContext) {
	remote := ctx.RemoteAddr().String()

	// 升级HTTP连接为WebSocket连接，回调返回前连接一直有效
	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		p := h.coordinator.NewPeer(peer.NewWebSocketTransport(conn))
		h.coordinator.Serve(c, p)
	})
	if err != nil {
		h.log.Warn("websocket: upgrade failed", "remote", remote, "error", err)
	}
}
