package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/inbox"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/whatsapp"
)

const maxWebhookBody = 1 << 20

// WebhookPipeline processes raw Cloud API webhook payloads.
type WebhookPipeline interface {
	HandleWebhook(ctx context.Context, payload []byte) (inbox.Outcome, error)
}

// WebhookHandler answers the WhatsApp Cloud API webhook.
type WebhookHandler struct {
	pipeline    WebhookPipeline
	verifyToken string
	logger      *slog.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(log *slog.Logger, pipeline WebhookPipeline, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		pipeline:    pipeline,
		verifyToken: verifyToken,
		logger:      logger.OrDiscard(log).With(slog.String("handler", "webhook")),
	}
}

// Register mounts GET and POST /webhook.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
}

// Verify echoes hub.challenge when the subscription token matches.
func (h *WebhookHandler) Verify(c echo.Context) error {
	challenge, err := whatsapp.Verify(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.verifyToken,
	)
	if err != nil {
		h.logger.Warn("webhook verification rejected", slog.String("mode", c.QueryParam("hub.mode")))
		return c.String(http.StatusForbidden, "Verification failed")
	}
	h.logger.Info("webhook verified")
	return c.String(http.StatusOK, challenge)
}

// Receive processes one notification. It always answers 200 so the platform
// does not keep redelivering payloads that cannot be processed.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
	}
	outcome, err := h.pipeline.HandleWebhook(c.Request().Context(), body)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
	}
	return c.JSON(http.StatusOK, outcome)
}
