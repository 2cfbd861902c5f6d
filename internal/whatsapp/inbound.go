package whatsapp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NonTextPlaceholder stands in for media and other unsupported message types.
const NonTextPlaceholder = "[Non-text message]"

// Inbound is one message received from a contact.
type Inbound struct {
	From        string          `json:"from"`
	ProfileName string          `json:"profile_name,omitempty"`
	MessageID   string          `json:"message_id,omitempty"`
	Text        string          `json:"text"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	Raw         json.RawMessage `json:"raw_message,omitempty"`
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []json.RawMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		ButtonReply *struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// ParseInbound extracts the first message of a webhook notification.
// ok is false for notifications without messages, such as delivery statuses.
func ParseInbound(payload []byte) (Inbound, bool, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Inbound{}, false, err
	}
	if len(body.Entry) == 0 || len(body.Entry[0].Changes) == 0 {
		return Inbound{}, false, nil
	}
	value := body.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return Inbound{}, false, nil
	}
	raw := value.Messages[0]
	var msg webhookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, false, err
	}
	if strings.TrimSpace(msg.From) == "" {
		return Inbound{}, false, nil
	}

	in := Inbound{
		From:      msg.From,
		MessageID: msg.ID,
		Text:      messageText(msg),
		Timestamp: webhookMillis(msg.Timestamp),
		Raw:       raw,
	}
	if len(value.Contacts) > 0 {
		in.ProfileName = strings.TrimSpace(value.Contacts[0].Profile.Name)
	}
	return in, true, nil
}

func messageText(msg webhookMessage) string {
	switch {
	case msg.Text != nil:
		return msg.Text.Body
	case msg.Button != nil:
		return msg.Button.Text
	case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
		return msg.Interactive.ButtonReply.Title
	case msg.Interactive != nil && msg.Interactive.ListReply != nil:
		return msg.Interactive.ListReply.Title
	default:
		return NonTextPlaceholder
	}
}

// webhookMillis converts the Cloud API epoch-seconds string to milliseconds.
func webhookMillis(value string) int64 {
	ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ts <= 0 {
		return 0
	}
	if ts < 1_000_000_000_000 {
		ts *= 1000
	}
	return ts
}
