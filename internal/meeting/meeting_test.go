package meeting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/schedule"
)

type fakeModel struct {
	json    string
	jsonErr error
	text    string
	textErr error
}

func (f *fakeModel) Generate(context.Context, string) (string, error) {
	return f.text, f.textErr
}

func (f *fakeModel) GenerateJSON(context.Context, string) (string, error) {
	return f.json, f.jsonErr
}

type fakeBooker struct {
	bookings []calendar.Booking
	result   func(b calendar.Booking) calendar.BookingResult
}

func (f *fakeBooker) Book(_ context.Context, b calendar.Booking) calendar.BookingResult {
	f.bookings = append(f.bookings, b)
	return f.result(b)
}

func realEvent(b calendar.Booking) calendar.BookingResult {
	start, _ := time.Parse("2006-01-02 15:04", b.Date+" "+b.Time)
	return calendar.BookingResult{
		EventID:     "abc123",
		MeetingLink: "https://meet.google.com/xyz-abcd-efg",
		Title:       b.Title,
		Start:       start,
		End:         start.Add(time.Hour),
		Status:      calendar.StatusCreated,
	}
}

func instantMeeting(b calendar.Booking) calendar.BookingResult {
	r := realEvent(b)
	r.EventID = "evt_0123456789"
	r.MeetingLink = calendar.FallbackMeetURL
	r.Status = calendar.StatusInstant
	r.Fallback = true
	return r
}

type fakeReminders struct {
	at   time.Time
	to   string
	text string
}

func (f *fakeReminders) Remind(at time.Time, to, text string) (schedule.Reminder, error) {
	f.at, f.to, f.text = at, to, text
	return schedule.Reminder{ID: "r-1", At: at, To: to, Text: text}, nil
}

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newHandler(model *fakeModel, booker *fakeBooker, reminders Reminders) *Handler {
	var m llm.Model
	if model != nil {
		m = model
	}
	detector := NewDetector(nil, m, time.UTC)
	detector.now = func() time.Time { return fixedNow }
	h := NewHandler(nil, detector, m, booker, reminders, HandlerConfig{Location: time.UTC, ReminderLead: 10 * time.Minute})
	h.now = func() time.Time { return fixedNow }
	return h
}

func TestDetectKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"Can we meet tomorrow at 3pm?", true},
		{"Let's schedule a call today", true},
		{"Zoom at 10am works", true},
		{"What time is it?", false},
		{"Thanks for the meeting notes", false},
		{"See you tomorrow", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectKeywords(tt.text).HasMeeting, tt.text)
	}
}

func TestLinks(t *testing.T) {
	t.Parallel()

	text := "Join https://meet.google.com/abc-defg-hij or https://zoom.us/j/12345 later"
	assert.Equal(t, []string{"https://meet.google.com/abc-defg-hij", "https://zoom.us/j/12345"}, Links(text))
	assert.Empty(t, Links("no links here"))
}

func TestDetectUsesModelThenFallsBack(t *testing.T) {
	t.Parallel()

	d := NewDetector(nil, &fakeModel{json: "```json\n{\"has_meeting\": true, \"date\": \"2026-10-21\", \"time\": \"11:00\", \"meeting_link\": null, \"description\": \"Demo\"}\n```"}, time.UTC)
	det := d.Detect(context.Background(), "demo on Wednesday 11am?")
	assert.Equal(t, Detection{HasMeeting: true, Date: "2026-10-21", Time: "11:00", Description: "Demo", Source: SourceModel}, det)

	d = NewDetector(nil, &fakeModel{json: "I cannot answer that"}, time.UTC)
	det = d.Detect(context.Background(), "Can we meet tomorrow at 3pm?")
	assert.True(t, det.HasMeeting)
	assert.Equal(t, SourceKeywords, det.Source)

	d = NewDetector(nil, &fakeModel{jsonErr: errors.New("boom")}, time.UTC)
	assert.False(t, d.Detect(context.Background(), "hello").HasMeeting)
}

func TestHandleInboundMeetingRequest(t *testing.T) {
	t.Parallel()

	booker := &fakeBooker{result: realEvent}
	reminders := &fakeReminders{}
	h := newHandler(&fakeModel{
		jsonErr: errors.New("quota exceeded"),
		text:    "Here's the confirmation: \"Perfect! I've scheduled our meeting for Tomorrow at 03:00 PM. Join here: [Meeting Link]\"",
	}, booker, reminders)

	out := h.Handle(context.Background(), Request{Text: "Can we meet tomorrow at 3pm?", ContactName: "Shubh", Phone: "919876543210"})
	require.True(t, out.IsMeeting)
	require.Len(t, booker.bookings, 1)
	assert.Equal(t, calendar.Booking{
		Title:           "Meeting with Shubh",
		Description:     "WhatsApp meeting request from Shubh (919876543210)",
		Date:            "2026-10-20",
		Time:            "15:00",
		DurationMinutes: 60,
	}, booker.bookings[0])

	assert.Equal(t, "Tomorrow", out.Info.FormattedDate)
	assert.Equal(t, "03:00 PM", out.Info.FormattedTime)
	assert.Equal(t, "abc123", out.EventID)
	assert.NotContains(t, strings.ToLower(out.Response), "[meeting link]")
	assert.True(t, strings.HasPrefix(out.Response, "Perfect! I've scheduled our meeting for Tomorrow at 03:00 PM."))
	assert.True(t, strings.HasSuffix(out.Response, "\n\n📅 Tomorrow at 03:00 PM\n🔗 https://meet.google.com/xyz-abcd-efg"))

	assert.Equal(t, "r-1", out.Reminder)
	assert.Equal(t, "919876543210", reminders.to)
	assert.Equal(t, time.Date(2026, 10, 20, 14, 50, 0, 0, time.UTC), reminders.at)
	assert.Contains(t, reminders.text, "03:00 PM")
}

func TestHandleFallbackOmitsLink(t *testing.T) {
	t.Parallel()

	h := newHandler(nil, &fakeBooker{result: instantMeeting}, nil)
	out := h.Handle(context.Background(), Request{Text: "Can we schedule a call today?", Phone: "15550100"})
	require.True(t, out.IsMeeting)
	assert.True(t, out.Fallback)
	assert.Equal(t, "17:00", out.Info.Time)
	assert.Equal(t, "Today", out.Info.FormattedDate)
	assert.Equal(t, "Great! Meeting confirmed for Today at 05:00 PM. See you then!", out.Response)
	assert.NotContains(t, out.Response, calendar.FallbackMeetURL)
}

func TestHandleIgnoresOrdinaryMessages(t *testing.T) {
	t.Parallel()

	booker := &fakeBooker{result: realEvent}
	out := newHandler(nil, booker, nil).Handle(context.Background(), Request{Text: "Thanks, got it"})
	assert.False(t, out.IsMeeting)
	assert.Empty(t, booker.bookings)
}

func TestResolveTime(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"at 3pm":         "15:00",
		"12 am works":    "00:00",
		"12pm please":    "12:00",
		"around 9:30 am": "09:30",
		"sometime later": DefaultTime,
		"at 13pm":        DefaultTime,
	}
	for text, want := range tests {
		assert.Equal(t, want, ResolveTime("", text), text)
	}
	assert.Equal(t, "08:05", ResolveTime("8:05", "at 3pm"))
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Today", FormatDate("2026-10-19", fixedNow))
	assert.Equal(t, "Tomorrow", FormatDate("2026-10-20", fixedNow))
	assert.Equal(t, "December 15, 2026", FormatDate("2026-12-15", fixedNow))
	assert.Equal(t, "soon", FormatDate("soon", fixedNow))
	assert.Equal(t, "02:00 PM", FormatTime("14:00"))
	assert.Equal(t, "09:05 AM", FormatTime("09:05"))
	assert.Equal(t, "TBD", FormatTime("TBD"))
}

func TestCleanConfirmation(t *testing.T) {
	t.Parallel()

	got := CleanConfirmation("Meeting confirmation: Sounds good! See you then.\nMeeting link:\n{link}", "")
	assert.Equal(t, "Sounds good! See you then.", got)
	got = CleanConfirmation("Booked! https://meet.google.com/x-y-z", "https://meet.google.com/x-y-z")
	assert.Equal(t, "Booked!", got)
}
