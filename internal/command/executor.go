package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

// UsageHint is returned when a command cannot be parsed.
const UsageHint = `Could not parse command. Use format: 'send "message" to ContactName'`

// Resolver maps a recipient fragment to a contact id.
type Resolver interface {
	Resolve(ctx context.Context, target string, aliases *resolver.Aliases) (resolver.Resolution, error)
}

// Recorder appends sent messages to the conversation log.
type Recorder interface {
	Append(ctx context.Context, in conversation.AppendInput) (string, error)
}

// ContactSource lists the known contacts.
type ContactSource interface {
	All() []contacts.Contact
}

// Request is one command execution. Aliases supplied by the caller take
// precedence over those derived from the contact directory.
type Request struct {
	Command     string               `json:"command"`
	Aliases     *resolver.Aliases    `json:"-"`
	Credentials whatsapp.Credentials `json:"credentials"`
}

// Result reports the outcome. Failures set Success=false and Error.
type Result struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Message   string            `json:"message,omitempty"`
	Recipient string            `json:"recipient,omitempty"`
	Text      string            `json:"text,omitempty"`
	ContactID string            `json:"contact_id,omitempty"`
	Method    string            `json:"method,omitempty"`
	Receipt   *whatsapp.Receipt `json:"whatsapp_response,omitempty"`
}

// Executor resolves, sends and records send commands.
type Executor struct {
	resolver   Resolver
	transport  whatsapp.Transport
	recorder   Recorder
	contacts   ContactSource
	businessID string
	logger     *slog.Logger
}

// NewExecutor creates an executor. contacts and recorder may be nil.
func NewExecutor(log *slog.Logger, res Resolver, transport whatsapp.Transport, recorder Recorder, contactSource ContactSource, businessID string) *Executor {
	return &Executor{
		resolver:   res,
		transport:  transport,
		recorder:   recorder,
		contacts:   contactSource,
		businessID: businessID,
		logger:     logger.OrDiscard(log).With(slog.String("service", "command")),
	}
}

// Process parses req.Command and sends it. It never returns an error; failures
// are reported in the Result.
func (e *Executor) Process(ctx context.Context, req Request) Result {
	cmd, ok := Parse(req.Command)
	if !ok {
		e.logger.Warn("unparseable command", slog.String("command", req.Command))
		return Result{Error: UsageHint}
	}
	return e.Send(ctx, cmd, req.Aliases, req.Credentials)
}

// Send resolves cmd.Recipient and delivers cmd.Message verbatim. Callers that
// already hold the message and recipient use it directly instead of rendering
// a command string. Every attempt that reaches a resolved contact is recorded,
// failed ones with StatusFailed.
func (e *Executor) Send(ctx context.Context, cmd Command, aliases *resolver.Aliases, creds whatsapp.Credentials) Result {
	cmd.Message = strings.TrimSpace(cmd.Message)
	cmd.Recipient = strings.TrimSpace(cmd.Recipient)
	if cmd.Message == "" || cmd.Recipient == "" {
		return Result{Recipient: cmd.Recipient, Text: cmd.Message, Error: "message and recipient are required"}
	}
	result := Result{Recipient: cmd.Recipient, Text: cmd.Message}

	res, err := e.resolver.Resolve(ctx, cmd.Recipient, e.aliases(aliases))
	if err != nil {
		e.logger.Warn("recipient not resolved", slog.String("recipient", cmd.Recipient), slog.Any("error", err))
		result.Error = fmt.Sprintf("Contact '%s' not found in aliases", cmd.Recipient)
		return result
	}
	contactID := res.ContactID
	if digits := contacts.Normalize(contactID); digits != "" {
		contactID = digits
	}
	result.ContactID = contactID
	result.Method = res.Method

	receipt, err := e.transport.Send(ctx, whatsapp.Outgoing{To: contactID, Text: cmd.Message, Credentials: creds})
	if err != nil {
		e.logger.Error("send failed", slog.String("contact_id", contactID), slog.Any("error", err))
		result.Error = sendError(err)
		e.record(ctx, contactID, cmd.Message, creds, conversation.StatusFailed)
		return result
	}
	result.Success = true
	result.Message = "Message sent to " + cmd.Recipient
	result.Receipt = &receipt
	e.record(ctx, contactID, cmd.Message, creds, "")
	return result
}

func (e *Executor) record(ctx context.Context, contactID, text string, creds whatsapp.Credentials, status string) {
	if e.recorder == nil {
		return
	}
	_, err := e.recorder.Append(ctx, conversation.AppendInput{
		ContactID: contactID,
		Text:      text,
		Sender:    whatsapp.Sender(creds, e.businessID),
		Receiver:  contactID,
		Status:    status,
	})
	if err != nil {
		e.logger.Warn("record sent message failed", slog.String("contact_id", contactID), slog.Any("error", err))
	}
}

func (e *Executor) aliases(requested *resolver.Aliases) *resolver.Aliases {
	out := resolver.NewAliases()
	if requested != nil {
		out.Merge(requested)
	}
	if e.contacts != nil {
		out.Merge(resolver.BuildAliases(e.contacts.All()))
	}
	return out
}

func sendError(err error) string {
	if errors.Is(err, whatsapp.ErrNotConfigured) {
		return "WhatsApp credentials are not configured on the server."
	}
	return err.Error()
}
