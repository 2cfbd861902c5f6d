package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/agent"
	"github.com/memohai/wabiz/internal/logger"
)

// Orchestrator is the agent as used by the HTTP routes.
type Orchestrator interface {
	Process(ctx context.Context, input string, opts agent.Options) agent.Response
	ScheduleMeeting(ctx context.Context, input string, opts agent.Options) agent.Response
	History() []agent.Turn
	Clear()
}

// AgentHandler exposes the agent orchestrator.
type AgentHandler struct {
	agent  Orchestrator
	logger *slog.Logger
}

// ChatRequest is the body of POST /api/ai-agent/chat.
type ChatRequest struct {
	Message string        `json:"message"`
	Context agent.Options `json:"context"`
}

// ScheduleMeetingRequest is the body of POST /api/schedule-meeting. Calendar
// access uses the account connected through /auth/google.
type ScheduleMeetingRequest struct {
	Command        string            `json:"command"`
	ContactAliases map[string]string `json:"contact_aliases"`
	Token          string            `json:"whatsapp_token"`
	PhoneNumberID  string            `json:"phone_number_id"`
}

// NewAgentHandler creates the agent handler.
func NewAgentHandler(log *slog.Logger, orchestrator Orchestrator) *AgentHandler {
	return &AgentHandler{
		agent:  orchestrator,
		logger: logger.OrDiscard(log).With(slog.String("handler", "agent")),
	}
}

// Register mounts the agent routes.
func (h *AgentHandler) Register(e *echo.Echo) {
	group := e.Group("/api/ai-agent")
	group.POST("/chat", h.Chat)
	group.GET("/history", h.History)
	group.POST("/clear-history", h.ClearHistory)
	e.POST("/api/schedule-meeting", h.ScheduleMeeting)
}

// Chat godoc
// @Summary Talk to the agent
// @Description Classifies the message and sends, schedules or chats
// @Tags agent
// @Param payload body ChatRequest true "Message"
// @Success 200 {object} agent.Response
// @Router /api/ai-agent/chat [post]
func (h *AgentHandler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusOK, map[string]any{"success": false, "error": "Message cannot be empty"})
	}
	resp := h.agent.Process(c.Request().Context(), req.Message, req.Context)
	return c.JSON(http.StatusOK, resp)
}

// History returns the agent turns, oldest first.
func (h *AgentHandler) History(c echo.Context) error {
	history := h.agent.History()
	return c.JSON(http.StatusOK, map[string]any{"success": true, "history": history})
}

// ClearHistory drops the agent turns.
func (h *AgentHandler) ClearHistory(c echo.Context) error {
	h.agent.Clear()
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ScheduleMeeting books a meeting from a free-text command.
func (h *AgentHandler) ScheduleMeeting(c echo.Context) error {
	var req ScheduleMeetingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Command) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command is required")
	}
	resp := h.agent.ScheduleMeeting(c.Request().Context(), req.Command, agent.Options{
		Aliases:     req.ContactAliases,
		Credentials: credentials(req.Token, req.PhoneNumberID),
	})
	return c.JSON(http.StatusOK, resp)
}
