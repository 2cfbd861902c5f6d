package llm

import "github.com/google/jsonschema-go/jsonschema"

// Intent labels.
const (
	IntentSendMessage     = "send_message"
	IntentScheduleMeeting = "schedule_meeting"
	IntentGeneralChat     = "general_chat"
)

// Intent is the classification of an agent request.
type Intent struct {
	Intent     string  `json:"intent" jsonschema:"one of send_message, schedule_meeting, general_chat"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SendExtraction is the model's reading of a send-message request.
type SendExtraction struct {
	RecipientName           string `json:"recipient_name,omitempty"`
	RecipientNumber         string `json:"recipient_number,omitempty"`
	ResolvedRecipientName   string `json:"resolved_recipient_name,omitempty"`
	ResolvedRecipientNumber string `json:"resolved_recipient_number,omitempty"`
	MessageToSend           string `json:"message_to_send,omitempty"`
	IsValidRequest          bool   `json:"is_valid_request"`
}

// MeetingExtraction is the model's reading of a schedule-meeting request.
type MeetingExtraction struct {
	ContactName     string `json:"contact_name,omitempty"`
	ContactNumber   string `json:"contact_number,omitempty"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Title           string `json:"title,omitempty"`
	Invite          string `json:"invite_message,omitempty"`
	IsValidRequest  bool   `json:"is_valid_request"`
}

// MeetingDetection reports whether an inbound message asks for a meeting.
type MeetingDetection struct {
	HasMeeting  bool   `json:"has_meeting"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	MeetingLink string `json:"meeting_link,omitempty"`
	Description string `json:"description,omitempty"`
}

// RecipientMatch is the model's pick from a listed set of contacts.
type RecipientMatch struct {
	Matched bool   `json:"matched"`
	Name    string `json:"name,omitempty"`
	Number  string `json:"number,omitempty"`
}

var (
	IntentSchema = MustSchema[Intent](func(s *jsonschema.Schema) {
		s.Properties["intent"].Enum = []any{IntentSendMessage, IntentScheduleMeeting, IntentGeneralChat}
	})
	SendExtractionSchema    = MustSchema[SendExtraction](nil)
	MeetingExtractionSchema = MustSchema[MeetingExtraction](func(s *jsonschema.Schema) {
		minimum := 0.0
		s.Properties["duration_minutes"].Minimum = &minimum
	})
	MeetingDetectionSchema = MustSchema[MeetingDetection](nil)
	RecipientMatchSchema   = MustSchema[RecipientMatch](nil)
)
