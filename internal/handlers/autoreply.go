package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/autoreply"
	"github.com/memohai/wabiz/internal/logger"
)

// AutoReplier drafts and sends replies to inbound messages.
type AutoReplier interface {
	Process(ctx context.Context, in autoreply.Incoming) autoreply.Result
}

// AutoReplyHandler exposes the auto-reply service.
type AutoReplyHandler struct {
	replier AutoReplier
	logger  *slog.Logger
}

// AutoReplyRequest is the body of POST /api/auto-reply. AutoReplyEnabled
// defaults to true when omitted.
type AutoReplyRequest struct {
	FromNumber          string          `json:"from_number"`
	MessageText         string          `json:"message_text"`
	BusinessDescription string          `json:"business_description"`
	Token               string          `json:"whatsapp_token"`
	PhoneNumberID       string          `json:"phone_number_id"`
	AutoReplyEnabled    *bool           `json:"auto_reply_enabled"`
	ContactSettings     map[string]bool `json:"contact_auto_reply_settings"`
}

// NewAutoReplyHandler creates the auto-reply handler.
func NewAutoReplyHandler(log *slog.Logger, replier AutoReplier) *AutoReplyHandler {
	return &AutoReplyHandler{
		replier: replier,
		logger:  logger.OrDiscard(log).With(slog.String("handler", "autoreply")),
	}
}

// Register mounts POST /api/auto-reply.
func (h *AutoReplyHandler) Register(e *echo.Echo) {
	e.POST("/api/auto-reply", h.Reply)
}

// Reply stores an inbound message and answers it when enabled.
func (h *AutoReplyHandler) Reply(c echo.Context) error {
	var req AutoReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.FromNumber) == "" || strings.TrimSpace(req.MessageText) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "from_number and message_text are required")
	}
	enabled := true
	if req.AutoReplyEnabled != nil {
		enabled = *req.AutoReplyEnabled
	}
	result := h.replier.Process(c.Request().Context(), autoreply.Incoming{
		From:                req.FromNumber,
		Text:                req.MessageText,
		BusinessDescription: req.BusinessDescription,
		Credentials:         credentials(req.Token, req.PhoneNumberID),
		Enabled:             enabled,
		ContactSettings:     req.ContactSettings,
	})
	return c.JSON(http.StatusOK, result)
}
