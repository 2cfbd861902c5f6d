package agent

import (
	"fmt"
	"time"
)

func intentPrompt(input string) string {
	return fmt.Sprintf(`Analyze this user input and determine the intent. Respond with JSON only.

User input: %q

Possible intents:
1. "send_message" - wants to send a message to someone (mentions a name or number)
2. "schedule_meeting" - wants to schedule a meeting with someone
3. "general_chat" - general conversation or questions

Look for:
- Names or phone numbers (send_message or schedule_meeting)
- Meeting or appointment keywords (schedule_meeting)
- Questions or general statements (general_chat)

Return JSON: {"intent": "send_message|schedule_meeting|general_chat", "confidence": 0.8}`, input)
}

func sendPrompt(input, contactsJSON string) string {
	return fmt.Sprintf(`Extract message sending information from this request and resolve the recipient using the provided contacts list.
Request: %q

Contacts (array of objects):
%s

Rules:
- Prefer the closest matching contact name from the provided list (handle typos like "Jhon" -> "john").
- If multiple possible matches, choose the most likely one by string similarity.
- If a phone number is explicitly provided in the request, use it.
- If you cannot determine a recipient, set is_valid_request to false.

Return JSON with:
{
  "recipient_name": "name as written in the request",
  "recipient_number": "phone number if explicitly in the request, else empty",
  "resolved_recipient_name": "best matching name from the Contacts list, or empty",
  "resolved_recipient_number": "number from the Contacts list for that name, or empty",
  "message_to_send": "the actual message content to send",
  "is_valid_request": true
}`, input, contactsJSON)
}

func polishPrompt(text string) string {
	return fmt.Sprintf(`Make this message more professional and polite, but keep it natural for WhatsApp:
%q

Return only the improved message, nothing else.`, text)
}

func meetingPrompt(input string, now time.Time) string {
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	return fmt.Sprintf(`Extract meeting information from this request:
%q

Return JSON with:
{
  "contact_name": "person to meet with",
  "contact_number": "phone number if mentioned",
  "date": "YYYY-MM-DD",
  "time": "HH:MM (24-hour)",
  "duration_minutes": 60,
  "title": "meeting title",
  "invite_message": "a short friendly WhatsApp invite for the contact",
  "is_valid_request": true
}

For relative dates "today" is %s and "tomorrow" is %s.
Default time if not specified: 17:00.
The invite must not contain any link or link placeholder; the real link is added afterwards.`, input, today, tomorrow)
}

func chatPrompt(recent, input string) string {
	return fmt.Sprintf(`You are a helpful AI assistant for a WhatsApp business automation system.

Recent conversation:
%s

User just said: %q

Respond naturally and helpfully. You can:
- Answer questions about the system
- Provide help with commands
- Have general conversation
- Suggest actions they can take

Keep responses concise and friendly.`, recent, input)
}
