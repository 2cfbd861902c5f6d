// Package autoreply answers inbound WhatsApp messages on behalf of the business.
package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/meeting"
	"github.com/memohai/wabiz/internal/whatsapp"
)

// DefaultHistoryLimit is the number of past messages given to the model.
const DefaultHistoryLimit = 50

// Conversation is the subset of the conversation store used here.
type Conversation interface {
	Append(ctx context.Context, in conversation.AppendInput) (string, error)
	History(ctx context.Context, contactID string, limit int) []conversation.Record
}

// Names resolves a phone number to a display name.
type Names interface {
	GetName(raw string) string
}

// MeetingHandler books meeting requests found in a message.
type MeetingHandler interface {
	Handle(ctx context.Context, req meeting.Request) meeting.Outcome
}

// Incoming is an inbound message to answer.
type Incoming struct {
	From                string               `json:"from_number"`
	Text                string               `json:"message_text"`
	BusinessDescription string               `json:"business_description"`
	Credentials         whatsapp.Credentials `json:"credentials"`
	Enabled             bool                 `json:"auto_reply_enabled"`
	// ContactSettings disables replies for numbers mapped to false.
	ContactSettings map[string]bool `json:"contact_auto_reply_settings,omitempty"`
	// Stored is set when the inbound message is already in the conversation store.
	Stored bool `json:"-"`
}

// Result reports what was done with an inbound message.
type Result struct {
	Success bool              `json:"success"`
	Sent    bool              `json:"auto_reply_sent"`
	Reason  string            `json:"reason,omitempty"`
	Reply   string            `json:"reply_text,omitempty"`
	Meeting *meeting.Outcome  `json:"meeting,omitempty"`
	Receipt *whatsapp.Receipt `json:"whatsapp_response,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Config holds defaults applied when a request leaves them empty.
type Config struct {
	BusinessID          string
	BusinessDescription string
	HistoryLimit        int
}

// Service drafts and sends replies.
type Service struct {
	store     Conversation
	names     Names
	meetings  MeetingHandler
	model     llm.Model
	transport whatsapp.Transport
	cfg       Config
	logger    *slog.Logger
}

// NewService creates an auto-reply service. names and meetings may be nil.
func NewService(log *slog.Logger, store Conversation, names Names, meetings MeetingHandler, model llm.Model, transport whatsapp.Transport, cfg Config) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Service{
		store:     store,
		names:     names,
		meetings:  meetings,
		model:     model,
		transport: transport,
		cfg:       cfg,
		logger:    logger.OrDiscard(log).With(slog.String("service", "autoreply")),
	}
}

// Process stores the inbound message and, when enabled, replies to it.
// Meeting requests are answered with a booking confirmation.
func (s *Service) Process(ctx context.Context, in Incoming) Result {
	from := strings.TrimSpace(in.From)
	if from == "" || strings.TrimSpace(in.Text) == "" {
		return Result{Error: "from_number and message_text are required"}
	}
	ours := whatsapp.Sender(in.Credentials, s.cfg.BusinessID)
	if !in.Stored {
		s.record(ctx, conversation.AppendInput{ContactID: from, Text: in.Text, Sender: from, Receiver: ours})
	}

	if !in.Enabled {
		return Result{Success: true, Reason: "Auto-reply disabled globally"}
	}
	if enabled, ok := in.ContactSettings[from]; ok && !enabled {
		return Result{Success: true, Reason: "Auto-reply disabled for contact"}
	}

	name := from
	if s.names != nil {
		name = s.names.GetName(from)
	}

	var (
		reply  string
		result Result
	)
	if s.meetings != nil {
		outcome := s.meetings.Handle(ctx, meeting.Request{Text: in.Text, ContactName: name, Phone: from})
		if outcome.IsMeeting && outcome.Response != "" {
			reply = outcome.Response
			result.Meeting = &outcome
		}
	}
	if reply == "" {
		drafted, err := s.draft(ctx, in, ours)
		if err != nil {
			s.logger.Error("draft reply failed", slog.String("from", from), slog.Any("error", err))
			return Result{Error: err.Error()}
		}
		reply = drafted
	}

	receipt, err := s.transport.Send(ctx, whatsapp.Outgoing{To: from, Text: reply, Credentials: in.Credentials})
	if err != nil {
		s.logger.Error("send reply failed", slog.String("from", from), slog.Any("error", err))
		return Result{Reply: reply, Meeting: result.Meeting, Error: err.Error()}
	}
	s.record(ctx, conversation.AppendInput{ContactID: from, Text: reply, Sender: ours, Receiver: from})
	s.logger.Info("auto-reply sent", slog.String("to", from))

	result.Success = true
	result.Sent = true
	result.Reply = reply
	result.Receipt = &receipt
	return result
}

func (s *Service) draft(ctx context.Context, in Incoming, ours string) (string, error) {
	if s.model == nil {
		return "", llm.ErrUnavailable
	}
	description := strings.TrimSpace(in.BusinessDescription)
	if description == "" {
		description = s.cfg.BusinessDescription
	}
	history := FormatHistory(s.store.History(ctx, in.From, s.cfg.HistoryLimit), ours)
	raw, err := s.model.Generate(ctx, replyPrompt(description, history, in.Text))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply := CleanReply(raw)
	if reply == "" {
		return "", fmt.Errorf("generate reply: %w", llm.ErrMalformed)
	}
	return reply, nil
}

func (s *Service) record(ctx context.Context, in conversation.AppendInput) {
	if _, err := s.store.Append(ctx, in); err != nil {
		s.logger.Warn("record message failed", slog.String("contact_id", in.ContactID), slog.Any("error", err))
	}
}

// FormatHistory renders records as "ME [datetime]: text" or "THEM [datetime]: text" lines.
func FormatHistory(records []conversation.Record, ours string) string {
	if len(records) == 0 {
		return "No previous conversation."
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		label := "THEM"
		if r.Sender == ours {
			label = "ME"
		}
		lines = append(lines, fmt.Sprintf("%s [%s]: %s", label, r.Datetime, r.Text))
	}
	return strings.Join(lines, "\n")
}

func replyPrompt(description, history, message string) string {
	return fmt.Sprintf(`Reply naturally like a real person would: short, clear and human.
Generate a single response without extra commentary or options.
The whole response is pasted into the customer chat as the reply, so write a short 2-4 line message
with nothing else, not even quotes around it.
You are texting back on WhatsApp. You work for: %s
Last messages:
%s
They just said: %q`, description, history, message)
}
