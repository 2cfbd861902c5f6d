package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/version"
)

// PingHandler serves the root banner, /ping and /health for liveness.
type PingHandler struct {
	logger *slog.Logger
}

// NewPingHandler creates a ping handler.
func NewPingHandler(log *slog.Logger) *PingHandler {
	return &PingHandler{logger: logger.OrDiscard(log).With(slog.String("handler", "ping"))}
}

// Register mounts GET /, GET /ping, GET /health and HEAD /health on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.PingHead)
}

// Root returns the API name and version.
func (h *PingHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "WhatsApp Business Automation API",
		"version": version.GetInfo(),
	})
}

// Ping returns 200 JSON {"status":"ok"}.
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health reports service status and the main endpoints.
func (h *PingHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"services": map[string]string{
			"api":       "operational",
			"vector_db": "operational",
			"whatsapp":  "operational",
		},
		"endpoints": map[string]string{
			"send_message": "/api/send-message",
			"gemini_reply": "/api/generate-gemini-reply",
			"mcp_send":     "/api/mcp/send",
			"webhook":      "/webhook",
		},
	})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
