package hertzapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/RanFeng/ilog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"watchparty/internal/hertzws"
	"watchparty/internal/metrics"
	"watchparty/internal/protocol"
	"watchparty/internal/session"
)

// NewRouter 初始化Hertz路由
func NewRouter(h *server.Hertz, coordinator *session.Coordinator, m *metrics.Metrics, log *slog.Logger) *server.Hertz {
	// 创建WebSocket处理器
	wsHandler := hertzws.NewHandler(coordinator, log)
	// 劫持的连接由WebSocket自行管理，不放回连接池
	h.NoHijackConnPool = true

	// 注册中间件
	h.Use(recoveryMiddleware(log))
	h.Use(loggerMiddleware(log))

	// 健康检查接口
	h.GET("/healthz", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, "ok")
	})

	// API路由组
	api := h.Group("/api")
	{
		// 会话相关接口
		sessionGroup := api.Group("/session")
		{
			sessionGroup.GET("", handleGetSession(coordinator))
			sessionGroup.PUT("/threshold", handleSetThreshold(coordinator))
			sessionGroup.GET("/chat", handleChatHistory(coordinator))
		}
	}

	// 指标接口
	h.GET("/metrics", handleMetrics(m))

	// WebSocket路由
	h.GET("/ws", wsHandler.HandleWebSocket)

	return h
}

// recoveryMiddleware 恢复中间件
func recoveryMiddleware(log *slog.Logger) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered", "path", string(ctx.Path()), "error", err)
				ctx.String(consts.StatusInternalServerError, "Internal Server Error")
			}
		}()
		ctx.Next(c)
	}
}

// loggerMiddleware 日志中间件
func loggerMiddleware(log *slog.Logger) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.Next(c)
		log.Debug("request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
		)
	}
}

// handleGetSession 获取会话快照处理函数
func handleGetSession(coordinator *session.Coordinator) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, coordinator.Snapshot())
	}
}

// handleSetThreshold 修改同步阈值处理函数
func handleSetThreshold(coordinator *session.Coordinator) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		var payload thresholdRequest
		if err := ctx.Bind(&payload); err != nil {
			respondError(ctx, consts.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}

		if payload.SyncThreshold == nil {
			respondError(ctx, consts.StatusBadRequest, "invalid_request", "syncThreshold is required")
			return
		}

		ilog.EventInfo(c, "SetThreshold_start", "request", *payload.SyncThreshold)

		if err := coordinator.SetSyncThreshold(c, *payload.SyncThreshold); err != nil {
			if errors.Is(err, session.ErrInvalidThreshold) {
				respondError(ctx, consts.StatusBadRequest, "invalid_threshold", err.Error())
				return
			}
			respondError(ctx, consts.StatusInternalServerError, "update_failed", err.Error())
			return
		}

		ctx.JSON(consts.StatusOK, thresholdResponse{SyncThreshold: coordinator.SyncThreshold()})
	}
}

// handleChatHistory 获取聊天记录处理函数
func handleChatHistory(coordinator *session.Coordinator) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, coordinator.ChatHistory())
	}
}

// handleMetrics 输出Prometheus文本格式指标
func handleMetrics(m *metrics.Metrics) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		var buf bytes.Buffer
		contentType, err := m.WriteText(&buf)
		if err != nil {
			respondError(ctx, consts.StatusInternalServerError, "metrics_failed", err.Error())
			return
		}
		ctx.Data(consts.StatusOK, contentType, buf.Bytes())
	}
}

// 请求结构体定义
type thresholdRequest struct {
	SyncThreshold *float64 `json:"syncThreshold"`
}

type thresholdResponse struct {
	SyncThreshold float64 `json:"syncThreshold"`
}

// respondError 返回错误响应
func respondError(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, protocol.Envelope{
		Kind: "ERROR",
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
