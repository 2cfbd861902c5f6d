package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/schedule"
)

const (
	// DefaultTime is used when no time can be read from the message.
	DefaultTime     = "17:00"
	defaultDuration = 60
)

var (
	clockPattern       = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	placeholderPattern = regexp.MustCompile(`(?i)[\[{<][^\]}>]*link[^\]}>]*[\]}>]`)
	inviteLeadIns      = []string{
		"Here's a meeting invite:",
		"Meeting invitation:",
		"Invite message:",
		"Here's the invite:",
		"Meeting invite:",
		"Draft invite:",
		"Perfect! Here's what I'd send:",
		"I'd respond with:",
		"Here's a casual confirmation:",
		"Here's the confirmation:",
		"Meeting confirmation:",
		"Okay, here's a draft reply:",
		"Here's a professional confirmation:",
	}
)

// Booker creates calendar events.
type Booker interface {
	Book(ctx context.Context, b calendar.Booking) calendar.BookingResult
}

// Reminders schedules one-shot messages.
type Reminders interface {
	Remind(at time.Time, to, text string) (schedule.Reminder, error)
}

// Request is an inbound message to check for a meeting request.
type Request struct {
	Text        string
	ContactName string
	Phone       string
}

// Info holds the resolved meeting details.
type Info struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	FormattedDate string `json:"formatted_date"`
	FormattedTime string `json:"formatted_time"`
	MeetingLink   string `json:"meeting_link"`
	Description   string `json:"description,omitempty"`
}

// Outcome is the result of Handle. Response is the confirmation to send back.
type Outcome struct {
	IsMeeting bool   `json:"is_meeting"`
	Response  string `json:"response,omitempty"`
	Info      Info   `json:"meeting_info"`
	EventID   string `json:"calendar_event_id,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	Reminder  string `json:"reminder_id,omitempty"`
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Location *time.Location
	// ReminderLead is how long before the meeting a WhatsApp reminder is sent. Zero disables reminders.
	ReminderLead time.Duration
}

// Handler turns meeting requests into booked events and confirmations.
type Handler struct {
	detector  *Detector
	model     llm.Model
	booker    Booker
	reminders Reminders
	lead      time.Duration
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a handler. model and reminders may be nil.
func NewHandler(log *slog.Logger, detector *Detector, model llm.Model, booker Booker, reminders Reminders, cfg HandlerConfig) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Handler{
		detector:  detector,
		model:     model,
		booker:    booker,
		reminders: reminders,
		lead:      cfg.ReminderLead,
		location:  cfg.Location,
		logger:    logger.OrDiscard(log).With(slog.String("service", "meeting")),
		now:       time.Now,
	}
}

// Handle detects a meeting request in req.Text and, if found, books it and
// drafts a confirmation. The link is appended only when a real event was created.
func (h *Handler) Handle(ctx context.Context, req Request) Outcome {
	det := h.detector.Detect(ctx, req.Text)
	if !det.HasMeeting {
		return Outcome{}
	}
	h.logger.Info("meeting detected", slog.String("phone", req.Phone), slog.String("source", det.Source))

	now := h.now().In(h.location)
	date := ResolveDate(det.Date, req.Text, now)
	clock := ResolveTime(det.Time, req.Text)
	name := strings.TrimSpace(req.ContactName)
	if name == "" {
		name = req.Phone
	}

	booked := h.booker.Book(ctx, calendar.Booking{
		Title:           "Meeting with " + name,
		Description:     fmt.Sprintf("WhatsApp meeting request from %s (%s)", name, req.Phone),
		Date:            date,
		Time:            clock,
		DurationMinutes: defaultDuration,
	})

	info := Info{
		Date:          date,
		Time:          clock,
		FormattedDate: FormatDate(date, now),
		FormattedTime: FormatTime(clock),
		MeetingLink:   booked.MeetingLink,
		Description:   det.Description,
	}
	response := h.confirmation(ctx, info)
	if !booked.Fallback && booked.MeetingLink != "" {
		response = fmt.Sprintf("%s\n\n📅 %s at %s\n🔗 %s", response, info.FormattedDate, info.FormattedTime, booked.MeetingLink)
	}

	out := Outcome{
		IsMeeting: true,
		Response:  response,
		Info:      info,
		EventID:   booked.EventID,
		Fallback:  booked.Fallback,
	}
	if !booked.Start.IsZero() {
		out.Reminder = h.remind(req.Phone, booked, info)
	}
	return out
}

func (h *Handler) confirmation(ctx context.Context, info Info) string {
	fallback := fmt.Sprintf("Great! Meeting confirmed for %s at %s. See you then!", info.FormattedDate, info.FormattedTime)
	if h.model == nil {
		return fallback
	}
	raw, err := h.model.Generate(ctx, invitePrompt(info))
	if err != nil {
		h.logger.Warn("confirmation draft failed", slog.Any("error", err))
		return fallback
	}
	text := CleanConfirmation(raw, info.MeetingLink)
	if text == "" {
		return fallback
	}
	return text
}

func (h *Handler) remind(phone string, booked calendar.BookingResult, info Info) string {
	if h.reminders == nil || h.lead <= 0 || strings.TrimSpace(phone) == "" {
		return ""
	}
	at := booked.Start.Add(-h.lead)
	if !at.After(h.now()) {
		return ""
	}
	text := fmt.Sprintf("⏰ Reminder: our meeting starts at %s.", info.FormattedTime)
	if !booked.Fallback && booked.MeetingLink != "" {
		text += "\n🔗 " + booked.MeetingLink
	}
	reminder, err := h.reminders.Remind(at, phone, text)
	if err != nil {
		h.logger.Warn("schedule reminder failed", slog.String("phone", phone), slog.Any("error", err))
		return ""
	}
	return reminder.ID
}

// CleanConfirmation strips lead-ins, wrapping quotes and link placeholders from
// a drafted confirmation. Links are removed too; the caller appends the real one.
func CleanConfirmation(text, link string) string {
	text = llm.StripLeadIn(text, inviteLeadIns)
	text = placeholderPattern.ReplaceAllString(text, "")
	if link != "" {
		text = strings.ReplaceAll(text, link, "")
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(strings.ToLower(trimmed), "link:") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " "))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// FormatDate renders a YYYY-MM-DD date as Today, Tomorrow or "January 02, 2006".
func FormatDate(date string, now time.Time) string {
	parsed, err := time.ParseInLocation("2006-01-02", date, now.Location())
	if err != nil {
		return date
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case parsed.Equal(today):
		return "Today"
	case parsed.Equal(today.AddDate(0, 0, 1)):
		return "Tomorrow"
	default:
		return parsed.Format("January 02, 2006")
	}
}

// FormatTime renders an HH:MM time as "03:04 PM".
func FormatTime(clock string) string {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return clock
	}
	return parsed.Format("03:04 PM")
}

// ResolveDate returns detected when it is a YYYY-MM-DD date, else tomorrow
// when text mentions it, else today.
func ResolveDate(detected, text string, now time.Time) string {
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(detected)); err == nil {
		return strings.TrimSpace(detected)
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "tomorrow") {
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	return now.Format("2006-01-02")
}

// ResolveTime returns detected when it is HH:MM, else the first h[:mm] am/pm
// clock in text, else DefaultTime.
func ResolveTime(detected, text string) string {
	if parsed, err := time.Parse("15:04", strings.TrimSpace(detected)); err == nil {
		return parsed.Format("15:04")
	}
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return DefaultTime
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return DefaultTime
	}
	pm := strings.EqualFold(m[3], "pm")
	switch {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func invitePrompt(info Info) string {
	return fmt.Sprintf(`Someone asked for a meeting. Confirm it professionally but casually like a human would on WhatsApp.

Details:
- Date: %s
- Time: %s

Write a quick, natural confirmation. Be brief but warm.
Do NOT include any link or link placeholder; it is added separately.

Good examples:
"Perfect! I've scheduled our meeting for %[1]s at %[2]s. Looking forward to it!"
"Sounds good! I've set up our meeting for %[1]s at %[2]s."

Do not add meta-commentary such as "Here's a meeting invite:".
Write ONLY the confirmation message.`, info.FormattedDate, info.FormattedTime)
}
