package agent

import (
	"context"
	"time"

	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

// Action types reported in responses and history turns.
const (
	ActionSendMessage           = "send_message"
	ActionSendMessageFailed     = "send_message_failed"
	ActionScheduleMeeting       = "schedule_meeting"
	ActionScheduleMeetingFailed = "schedule_meeting_failed"
	ActionGeneralChat           = "general_chat"
	ActionError                 = "error"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

const (
	// DefaultChatWindow is the number of recent turns given to general chat.
	DefaultChatWindow = 6
	// DefaultMeetingMinutes is used when the request names no duration.
	DefaultMeetingMinutes = 60

	timestampLayout = "2006-01-02 15:04:05"
)

// Turn is one entry of the agent conversation.
type Turn struct {
	Role       string `json:"role"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	ActionType string `json:"action_type,omitempty"`
	Details    any    `json:"details,omitempty"`
}

// Options carries per-request context supplied by the caller.
type Options struct {
	// Aliases maps names or ids to contact ids and takes precedence over the directory.
	Aliases     map[string]string    `json:"aliases,omitempty"`
	Credentials whatsapp.Credentials `json:"whatsapp"`
}

// Response is the structured result of one request. It is never an error.
type Response struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	ActionType string `json:"action_type"`
	Details    any    `json:"details,omitempty"`
}

// SendDetails describes a send-message action.
type SendDetails struct {
	Recipient      string          `json:"recipient,omitempty"`
	RecipientPhone string          `json:"recipient_phone,omitempty"`
	Message        string          `json:"message,omitempty"`
	Command        *command.Result `json:"mcp_response,omitempty"`
	// DirectSend is set when the command path failed and the message went out directly.
	DirectSend bool              `json:"direct_send,omitempty"`
	Receipt    *whatsapp.Receipt `json:"whatsapp_response,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// MeetingDetails describes a schedule-meeting action.
type MeetingDetails struct {
	MeetingInfo    llm.MeetingExtraction  `json:"meeting_info"`
	MeetingResult  calendar.BookingResult `json:"meeting_result"`
	CalendarAdded  bool                   `json:"calendar_added"`
	ContactName    string                 `json:"contact_name,omitempty"`
	RecipientPhone string                 `json:"recipient_phone,omitempty"`
	InviteMessage  string                 `json:"invite_message,omitempty"`
	InviteSent     bool                   `json:"invite_sent"`
	FormattedDate  string                 `json:"formatted_date"`
	FormattedTime  string                 `json:"formatted_time"`
}

// Commander resolves and sends a message to a recipient.
type Commander interface {
	Send(ctx context.Context, cmd command.Command, aliases *resolver.Aliases, creds whatsapp.Credentials) command.Result
}

// Directory is the contact directory as seen by the agent.
type Directory interface {
	All() []contacts.Contact
	GetName(raw string) string
	FindByName(name string) (contacts.Contact, bool)
}

// Booker creates calendar events.
type Booker interface {
	Book(ctx context.Context, b calendar.Booking) calendar.BookingResult
}

// Recorder appends sent messages to the conversation log.
type Recorder interface {
	Append(ctx context.Context, in conversation.AppendInput) (string, error)
}

// Config tunes the agent.
type Config struct {
	BusinessID string
	// ChatWindow is the number of recent turns used as general-chat context.
	ChatWindow int
	// ContactLimit caps the contact list offered to the model.
	ContactLimit int
	Location     *time.Location
}
