package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

// CommandExecutor runs send commands.
type CommandExecutor interface {
	Process(ctx context.Context, req command.Request) command.Result
	Send(ctx context.Context, cmd command.Command, aliases *resolver.Aliases, creds whatsapp.Credentials) command.Result
}

// CommandHandler exposes the send command executor.
type CommandHandler struct {
	executor CommandExecutor
	logger   *slog.Logger
}

// CommandRequest is the body of POST /api/mcp/send. Message and Recipient
// bypass command parsing and are used when Command is empty.
type CommandRequest struct {
	Token         string            `json:"WHATSAPP_TOKEN"`
	PhoneNumberID string            `json:"PHONE_NUMBER_ID"`
	Aliases       map[string]string `json:"aliases"`
	Command       string            `json:"command"`
	Message       string            `json:"message,omitempty"`
	Recipient     string            `json:"recipient,omitempty"`
}

// NewCommandHandler creates the command handler.
func NewCommandHandler(log *slog.Logger, executor CommandExecutor) *CommandHandler {
	return &CommandHandler{
		executor: executor,
		logger:   logger.OrDiscard(log).With(slog.String("handler", "command")),
	}
}

// Register mounts POST /api/mcp/send.
func (h *CommandHandler) Register(e *echo.Echo) {
	e.POST("/api/mcp/send", h.Send)
}

// Send godoc
// @Summary Execute a send command
// @Description Parses `send "<message>" to <recipient>` or takes message and recipient as given, resolves the recipient and sends
// @Tags commands
// @Param payload body CommandRequest true "Command"
// @Success 200 {object} command.Result
// @Failure 400 {object} ErrorResponse
// @Router /api/mcp/send [post]
func (h *CommandHandler) Send(c echo.Context) error {
	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	aliases := resolver.FromMap(req.Aliases)
	creds := credentials(req.Token, req.PhoneNumberID)
	var result command.Result
	switch {
	case strings.TrimSpace(req.Command) != "":
		result = h.executor.Process(c.Request().Context(), command.Request{Command: req.Command, Aliases: aliases, Credentials: creds})
	case strings.TrimSpace(req.Message) != "" && strings.TrimSpace(req.Recipient) != "":
		result = h.executor.Send(c.Request().Context(), command.Command{Message: req.Message, Recipient: req.Recipient}, aliases, creds)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "command or message and recipient are required")
	}
	if !result.Success {
		h.logger.Info("command failed", slog.String("error", result.Error))
	}
	return c.JSON(http.StatusOK, result)
}
