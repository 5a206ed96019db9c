package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"watchparty/internal/metrics"
	"watchparty/internal/protocol"
	"watchparty/internal/session"
	"watchparty/internal/ws"
)

type Server struct {
	coordinator *session.Coordinator
	ws          *ws.Handler
	router      *echo.Echo
}

type thresholdRequest struct {
	SyncThreshold *float64 `json:"syncThreshold"`
}

type thresholdResponse struct {
	SyncThreshold float64 `json:"syncThreshold"`
}

func NewServer(coordinator *session.Coordinator, m *metrics.Metrics, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		coordinator: coordinator,
		ws:          ws.NewHandler(coordinator, log),
		router:      e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/api/session", server.handleGetSession)
	e.PUT("/api/session/threshold", server.handleSetThreshold)
	e.GET("/api/session/chat", server.handleChatHistory)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/ws", server.handleWebSocket)

	return server
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleGetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coordinator.Snapshot())
}

func (s *Server) handleSetThreshold(c echo.Context) error {
	var payload thresholdRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if payload.SyncThreshold == nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "syncThreshold is required")
	}
	if err := s.coordinator.SetSyncThreshold(c.Request().Context(), *payload.SyncThreshold); err != nil {
		if errors.Is(err, session.ErrInvalidThreshold) {
			return respondError(c, http.StatusBadRequest, "invalid_threshold", err.Error())
		}
		return respondError(c, http.StatusInternalServerError, "update_failed", err.Error())
	}
	return c.JSON(http.StatusOK, thresholdResponse{SyncThreshold: s.coordinator.SyncThreshold()})
}

func (s *Server) handleChatHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coordinator.ChatHistory())
}

func (s *Server) handleWebSocket(c echo.Context) error {
	// the websocket handler owns the connection from here on; returning nil
	// keeps echo from writing a response
	s.ws.ServeHTTP(c.Response(), c.Request())
	return nil
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, protocol.Envelope{
		Kind: "ERROR",
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
