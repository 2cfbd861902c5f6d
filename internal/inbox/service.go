// Package inbox runs the pipeline for messages received from contacts.
package inbox

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/wabiz/internal/autoreply"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/meeting"
	"github.com/memohai/wabiz/internal/whatsapp"
)

// Outcome statuses.
const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
)

// Learner records the profile name of a sender and returns the display name.
type Learner interface {
	LearnFromInbound(ctx context.Context, raw, observedName string) string
}

// Recorder appends messages to the conversation log.
type Recorder interface {
	Append(ctx context.Context, in conversation.AppendInput) (string, error)
}

// MeetingHandler books meeting requests.
type MeetingHandler interface {
	Handle(ctx context.Context, req meeting.Request) meeting.Outcome
}

// Replier answers inbound messages automatically.
type Replier interface {
	Process(ctx context.Context, in autoreply.Incoming) autoreply.Result
}

// Config controls the pipeline.
type Config struct {
	Credentials         whatsapp.Credentials
	BusinessID          string
	AutoReply           bool
	BusinessDescription string
}

// Outcome summarizes what the pipeline did with one message.
type Outcome struct {
	Status       string            `json:"status"`
	From         string            `json:"from,omitempty"`
	ContactName  string            `json:"contact_name,omitempty"`
	Meeting      *meeting.Outcome  `json:"meeting,omitempty"`
	Confirmation *whatsapp.Receipt `json:"confirmation,omitempty"`
	AutoReply    *autoreply.Result `json:"auto_reply,omitempty"`
}

// MeetingConfirmed is the payload of meeting_confirmed events.
type MeetingConfirmed struct {
	From        string       `json:"from"`
	ContactName string       `json:"contact_name"`
	Message     string       `json:"message"`
	MeetingInfo meeting.Info `json:"meeting_info"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Service processes inbound messages from webhooks and the device session.
type Service struct {
	learner   Learner
	store     Recorder
	meetings  MeetingHandler
	replier   Replier
	transport whatsapp.Transport
	publisher event.Publisher
	cfg       Config
	logger    *slog.Logger
}

// NewService creates the pipeline. meetings, replier and publisher may be nil.
func NewService(log *slog.Logger, learner Learner, store Recorder, meetings MeetingHandler, replier Replier, transport whatsapp.Transport, publisher event.Publisher, cfg Config) *Service {
	return &Service{
		learner:   learner,
		store:     store,
		meetings:  meetings,
		replier:   replier,
		transport: transport,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.OrDiscard(log).With(slog.String("service", "inbox")),
	}
}

// HandleWebhook parses a Cloud API webhook payload and processes its message.
// Payloads without a message, such as delivery statuses, are ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte) (Outcome, error) {
	in, ok, err := whatsapp.ParseInbound(payload)
	if err != nil {
		s.logger.Warn("invalid webhook payload", slog.Any("error", err))
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Status: StatusIgnored}, nil
	}
	return s.HandleInbound(ctx, in), nil
}

// HandleInbound learns the sender name, stores the message and answers meeting
// requests. With auto-reply enabled the reply service answers instead.
func (s *Service) HandleInbound(ctx context.Context, in whatsapp.Inbound) Outcome {
	from := strings.TrimSpace(in.From)
	name := from
	if s.learner != nil {
		name = s.learner.LearnFromInbound(ctx, from, in.ProfileName)
	}
	s.logger.Info("message received", slog.String("from", from), slog.String("contact_name", name))
	s.publish(event.TypeNewMessage, in)

	out := Outcome{Status: StatusOK, From: from, ContactName: name}
	ours := whatsapp.Sender(s.cfg.Credentials, s.cfg.BusinessID)

	if s.cfg.AutoReply && s.replier != nil {
		s.record(ctx, conversation.AppendInput{ContactID: from, Text: in.Text, Sender: from, Receiver: ours, Timestamp: in.Timestamp})
		result := s.replier.Process(ctx, autoreply.Incoming{
			From:                from,
			Text:                in.Text,
			BusinessDescription: s.cfg.BusinessDescription,
			Credentials:         s.cfg.Credentials,
			Enabled:             true,
			Stored:              true,
		})
		out.AutoReply = &result
		if result.Meeting != nil {
			out.Meeting = result.Meeting
			s.confirmed(from, name, *result.Meeting)
		}
		return out
	}

	var outcome meeting.Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.record(gctx, conversation.AppendInput{ContactID: from, Text: in.Text, Sender: from, Receiver: ours, Timestamp: in.Timestamp})
		return nil
	})
	if s.meetings != nil && in.Text != whatsapp.NonTextPlaceholder {
		g.Go(func() error {
			outcome = s.meetings.Handle(gctx, meeting.Request{Text: in.Text, ContactName: name, Phone: from})
			return nil
		})
	}
	_ = g.Wait()

	if !outcome.IsMeeting {
		return out
	}
	out.Meeting = &outcome
	s.logger.Info("meeting handled", slog.String("from", from), slog.Bool("fallback", outcome.Fallback))
	s.confirmed(from, name, outcome)

	if outcome.Response == "" || s.transport == nil {
		return out
	}
	receipt, err := s.transport.Send(ctx, whatsapp.Outgoing{To: from, Text: outcome.Response, Credentials: s.cfg.Credentials})
	switch {
	case errors.Is(err, whatsapp.ErrNotConfigured):
		s.logger.Info("meeting confirmation not sent, no credentials", slog.String("to", from))
		return out
	case err != nil:
		s.logger.Error("send meeting confirmation failed", slog.String("to", from), slog.Any("error", err))
		return out
	}
	out.Confirmation = &receipt
	s.record(ctx, conversation.AppendInput{ContactID: from, Text: outcome.Response, Sender: ours, Receiver: from})
	return out
}

func (s *Service) confirmed(from, name string, outcome meeting.Outcome) {
	s.publish(event.TypeMeetingConfirmed, MeetingConfirmed{
		From:        from,
		ContactName: name,
		Message:     outcome.Response,
		MeetingInfo: outcome.Info,
		Timestamp:   time.Now(),
	})
}

func (s *Service) record(ctx context.Context, in conversation.AppendInput) {
	if _, err := s.store.Append(ctx, in); err != nil {
		s.logger.Warn("record message failed", slog.String("contact_id", in.ContactID), slog.Any("error", err))
	}
}

func (s *Service) publish(t event.Type, data any) {
	if s.publisher != nil {
		s.publisher.Publish(event.New(t, data))
	}
}
