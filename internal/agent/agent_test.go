package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type scriptedModel struct {
	mu      sync.Mutex
	json    []string
	jsonErr error
	text    string
	textErr error
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.text, m.textErr
}

func (m *scriptedModel) GenerateJSON(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.jsonErr != nil {
		return "", m.jsonErr
	}
	if len(m.json) == 0 {
		return "", errors.New("no scripted reply")
	}
	next := m.json[0]
	m.json = m.json[1:]
	return next, nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []whatsapp.Outgoing
	err  error
}

func (f *fakeTransport) Send(_ context.Context, msg whatsapp.Outgoing) (whatsapp.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return whatsapp.Receipt{}, f.err
	}
	f.sent = append(f.sent, msg)
	return whatsapp.Receipt{MessageID: fmt.Sprintf("wamid.%d", len(f.sent)), To: msg.To}, nil
}

type fakeBooker struct {
	bookings []calendar.Booking
	real     bool
}

func (f *fakeBooker) Book(_ context.Context, b calendar.Booking) calendar.BookingResult {
	f.bookings = append(f.bookings, b)
	start, _ := time.Parse("2006-01-02 15:04", b.Date+" "+b.Time)
	if f.real {
		return calendar.BookingResult{
			EventID:     "abc123",
			MeetingLink: "https://meet.google.com/xyz-abcd-efg",
			Title:       b.Title,
			Start:       start,
			End:         start.Add(time.Duration(b.DurationMinutes) * time.Minute),
			Status:      calendar.StatusCreated,
		}
	}
	return calendar.BookingResult{
		EventID:     "evt_0123456789",
		MeetingLink: calendar.FallbackMeetURL,
		Title:       b.Title,
		Start:       start,
		Status:      calendar.StatusInstant,
		Fallback:    true,
	}
}

type failingCommander struct{ calls int }

func (f *failingCommander) Send(_ context.Context, cmd command.Command, _ *resolver.Aliases, _ whatsapp.Credentials) command.Result {
	f.calls++
	return command.Result{Recipient: cmd.Recipient, Text: cmd.Message, Error: "status 500"}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(e event.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	agent     *Agent
	transport *fakeTransport
	store     *conversation.Store
	booker    *fakeBooker
	publisher *recordingPublisher
}

func newFixture(t *testing.T, model *scriptedModel, commands Commander) fixture {
	t.Helper()
	ctx := context.Background()
	directory := contacts.NewDirectory(nil, nil)
	require.NoError(t, directory.SetName(ctx, "919876543210", "Shubham"))
	require.NoError(t, directory.SetName(ctx, "15550001111", "John"))

	store := conversation.NewStore(nil, conversation.NewMemoryIndex(), embeddings.NewHashEmbedder(16), nil, time.UTC)
	transport := &fakeTransport{}
	if commands == nil {
		commands = command.NewExecutor(nil, resolver.New(nil, nil, 0), transport, store, directory, "business")
	}
	booker := &fakeBooker{}
	publisher := &recordingPublisher{}

	var m llm.Model
	if model != nil {
		m = model
	}
	a := New(nil, m, directory, commands, transport, booker, store, publisher, Config{BusinessID: "business", Location: time.UTC})
	a.now = func() time.Time { return fixedNow }
	return fixture{agent: a, transport: transport, store: store, booker: booker, publisher: publisher}
}

func TestClassifyHeuristic(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`send "hello" to John`:                   llm.IntentSendMessage,
		"tell Priya I'm late":                    llm.IntentSendMessage,
		"Schedule a meeting with Priya tomorrow": llm.IntentScheduleMeeting,
		"book an appointment for friday":         llm.IntentScheduleMeeting,
		"how are you today?":                     llm.IntentGeneralChat,
		"what can you do":                        llm.IntentGeneralChat,
	}
	for input, want := range cases {
		assert.Equal(t, want, ClassifyHeuristic(input), input)
	}
}

func TestProcessSendWithoutModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.Process(context.Background(), `send "hello there" to Shubham`, Options{})

	require.True(t, resp.Success, resp.Response)
	assert.Equal(t, ActionSendMessage, resp.ActionType)
	assert.Equal(t, "✅ Message sent to Shubham: hello there", resp.Response)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "919876543210", f.transport.sent[0].To)
	assert.Equal(t, "hello there", f.transport.sent[0].Text)

	history := f.store.History(context.Background(), "919876543210", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "business", history[0].Sender)

	turns := f.agent.History()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAgent, turns[1].Role)
	assert.Equal(t, ActionSendMessage, turns[1].ActionType)
	assert.Equal(t, "2026-10-19 09:30:00", turns[1].Timestamp)
	assert.Equal(t, []event.Type{event.TypeAgentResponse}, f.publisher.types())
}

func TestProcessSendWithModelResolvesTypo(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		json: []string{
			`{"intent":"send_message","confidence":0.9}`,
			"```json\n" + `{"recipient_name":"Jhon","resolved_recipient_name":"john","resolved_recipient_number":"15550001111","message_to_send":"running late","is_valid_request":true}` + "\n```",
		},
		text: `"Hello, I'm running a little late."`,
	}
	f := newFixture(t, model, nil)

	resp := f.agent.Process(context.Background(), "tell Jhon I'm running late", Options{})
	require.True(t, resp.Success, resp.Response)
	assert.Equal(t, "✅ Message sent to Jhon: Hello, I'm running a little late.", resp.Response)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "15550001111", f.transport.sent[0].To)

	details, ok := resp.Details.(SendDetails)
	require.True(t, ok)
	assert.Equal(t, "15550001111", details.RecipientPhone)
	assert.False(t, details.DirectSend)
	require.NotNil(t, details.Command)
	assert.True(t, details.Command.Success)
}

func TestSendFailureIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.Process(context.Background(), `send "hi" to Zed`, Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, ActionSendMessageFailed, resp.ActionType)
	assert.Equal(t, "❌ Failed to send message to Zed: Contact 'Zed' not found in aliases", resp.Response)
	assert.Empty(t, f.transport.sent)

	turns := f.agent.History()
	require.Len(t, turns, 2)
	assert.Equal(t, ActionSendMessageFailed, turns[1].ActionType)
}

func TestSendFallsBackToDirectSend(t *testing.T) {
	t.Parallel()

	commands := &failingCommander{}
	f := newFixture(t, nil, commands)
	resp := f.agent.SendMessage(context.Background(), `send "hi" to Shubham`, Options{})

	require.True(t, resp.Success, resp.Response)
	assert.Equal(t, 1, commands.calls)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "919876543210", f.transport.sent[0].To)
	details := resp.Details.(SendDetails)
	assert.True(t, details.DirectSend)
	history := f.store.History(context.Background(), "919876543210", 0)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].Status)
}

func TestSendWithoutCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	f.transport.err = whatsapp.ErrNotConfigured
	resp := f.agent.SendMessage(context.Background(), `send "hi" to John`, Options{})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Response, "WhatsApp credentials are not configured on the server.")

	// The executor and the direct send hit the same number; one attempt is kept.
	history := f.store.History(context.Background(), "15550001111", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, conversation.StatusFailed, history[0].Status)
}

func TestFailedDirectSendIsRecorded(t *testing.T) {
	t.Parallel()

	commands := &failingCommander{}
	f := newFixture(t, nil, commands)
	f.transport.err = errors.New("status 503")
	resp := f.agent.SendMessage(context.Background(), `send "hi" to Shubham`, Options{})

	assert.False(t, resp.Success)
	assert.Equal(t, "❌ Failed to send message to Shubham: status 500", resp.Response)
	history := f.store.History(context.Background(), "919876543210", 0)
	require.Len(t, history, 1)
	assert.Equal(t, conversation.StatusFailed, history[0].Status)
}

func TestSendKeepsQuotedMessageWhole(t *testing.T) {
	t.Parallel()

	const polished = `I'm sending "the report" to you today.`
	model := &scriptedModel{
		json: []string{
			`{"intent":"send_message","confidence":0.9}`,
			`{"recipient_name":"Shubham","resolved_recipient_name":"shubham","resolved_recipient_number":"919876543210","message_to_send":"sending the report today","is_valid_request":true}`,
		},
		text: polished,
	}
	f := newFixture(t, model, nil)

	resp := f.agent.Process(context.Background(), "tell Shubham I'm sending the report today", Options{})
	require.True(t, resp.Success, resp.Response)
	assert.Equal(t, "✅ Message sent to Shubham: "+polished, resp.Response)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "919876543210", f.transport.sent[0].To)
	assert.Equal(t, polished, f.transport.sent[0].Text)

	details := resp.Details.(SendDetails)
	assert.False(t, details.DirectSend)
	history := f.store.History(context.Background(), "919876543210", 0)
	require.Len(t, history, 1)
	assert.Equal(t, polished, history[0].Text)
}

func TestSendNotUnderstood(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.SendMessage(context.Background(), "please handle it", Options{})
	assert.Equal(t, sendNotUnderstood, resp.Response)

	unavailable := newFixture(t, &scriptedModel{jsonErr: fmt.Errorf("%w: 429", llm.ErrUnavailable)}, nil)
	resp = unavailable.agent.SendMessage(context.Background(), "please handle it", Options{})
	assert.Equal(t, modelUnavailable, resp.Response)

	invalid := newFixture(t, &scriptedModel{json: []string{`{"is_valid_request":false}`}}, nil)
	resp = invalid.agent.SendMessage(context.Background(), "message someone", Options{})
	assert.Equal(t, sendNotUnderstood, resp.Response)
	assert.Empty(t, invalid.transport.sent)
}

func TestRequestAliasesTakePrecedence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.SendMessage(context.Background(), `send "hi" to Shubham`, Options{Aliases: map[string]string{"shubham": "447700900123"}})

	require.True(t, resp.Success, resp.Response)
	assert.Equal(t, "447700900123", f.transport.sent[0].To)
}

func TestScheduleMeetingWithoutModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.Process(context.Background(), "Schedule a meeting with Shubham tomorrow at 3pm", Options{})

	require.True(t, resp.Success, resp.Response)
	assert.Equal(t, ActionScheduleMeeting, resp.ActionType)
	assert.Contains(t, resp.Response, "✅ Meeting scheduled with Shubham!")
	assert.Contains(t, resp.Response, "📅 Tomorrow at 03:00 PM")
	assert.Contains(t, resp.Response, "🔗 "+calendar.FallbackMeetURL)
	assert.Contains(t, resp.Response, "Calendar not connected")

	require.Len(t, f.booker.bookings, 1)
	booking := f.booker.bookings[0]
	assert.Equal(t, "2026-10-20", booking.Date)
	assert.Equal(t, "15:00", booking.Time)
	assert.Equal(t, DefaultMeetingMinutes, booking.DurationMinutes)
	assert.Equal(t, "Meeting with Shubham", booking.Title)

	require.Len(t, f.transport.sent, 1)
	invite := f.transport.sent[0]
	assert.Equal(t, "919876543210", invite.To)
	assert.Equal(t, "Hi Shubham, I've scheduled our meeting tomorrow at 03:00 PM.\n\n📅 Tomorrow at 03:00 PM\n🔗 "+calendar.FallbackMeetURL, invite.Text)

	details := resp.Details.(MeetingDetails)
	assert.True(t, details.InviteSent)
	assert.False(t, details.CalendarAdded)
	assert.Equal(t, "Shubham", details.ContactName)
	assert.Len(t, f.store.History(context.Background(), "919876543210", 0), 1)
}

func TestScheduleMeetingWithModelDraft(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{json: []string{
		`{"contact_name":"John","date":"2026-10-23","time":"11:30","duration_minutes":45,"title":"Roadmap review","invite_message":"Meeting invite: Hi John, looking forward to our roadmap review! Join here: [Meeting Link]","is_valid_request":true}`,
	}}
	f := newFixture(t, model, nil)
	f.booker.real = true

	resp := f.agent.ScheduleMeeting(context.Background(), "set up a roadmap review with John on Friday 11:30", Options{})
	require.True(t, resp.Success, resp.Response)
	assert.Contains(t, resp.Response, "📅 October 23, 2026 at 11:30 AM")
	assert.Contains(t, resp.Response, "📝 Added to your calendar")

	require.Len(t, f.booker.bookings, 1)
	assert.Equal(t, 45, f.booker.bookings[0].DurationMinutes)
	assert.Equal(t, "Roadmap review", f.booker.bookings[0].Title)

	require.Len(t, f.transport.sent, 1)
	text := f.transport.sent[0].Text
	assert.Equal(t, "15550001111", f.transport.sent[0].To)
	assert.True(t, strings.HasPrefix(text, "Hi John, looking forward to our roadmap review!"), text)
	assert.NotContains(t, text, "[Meeting Link]")
	assert.True(t, strings.HasSuffix(text, "🔗 https://meet.google.com/xyz-abcd-efg"), text)
}

func TestScheduleMeetingNotUnderstood(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.ScheduleMeeting(context.Background(), "let's have a meeting", Options{})
	assert.False(t, resp.Success)
	assert.Equal(t, meetingNotUnderstood, resp.Response)
	assert.Empty(t, f.booker.bookings)
}

func TestScheduleMeetingInviteFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	f.transport.err = errors.New("status 500")
	resp := f.agent.ScheduleMeeting(context.Background(), "meeting with +1 555 000 1111 today", Options{})

	require.True(t, resp.Success, resp.Response)
	details := resp.Details.(MeetingDetails)
	assert.False(t, details.InviteSent)
	assert.Equal(t, "15550001111", details.RecipientPhone)
	assert.Equal(t, "John", details.ContactName)
	assert.Equal(t, "17:00", f.booker.bookings[0].Time)
}

func TestGeneralChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	resp := f.agent.Process(context.Background(), "how are you?", Options{})
	assert.True(t, resp.Success)
	assert.Equal(t, ActionGeneralChat, resp.ActionType)
	assert.Equal(t, chatFallback, resp.Response)

	model := &scriptedModel{text: "Doing great, thanks!"}
	g := newFixture(t, model, nil)
	g.agent.Process(context.Background(), "hi", Options{})
	resp = g.agent.Process(context.Background(), "how are you?", Options{})
	assert.Equal(t, "Doing great, thanks!", resp.Response)

	last := model.prompts[len(model.prompts)-1]
	assert.Contains(t, last, "USER: hi\nAGENT: Doing great, thanks!")
	assert.Contains(t, last, `User just said: "how are you?"`)

	failing := newFixture(t, &scriptedModel{textErr: errors.New("boom")}, nil)
	resp = failing.agent.Process(context.Background(), "hello", Options{})
	assert.True(t, resp.Success)
	assert.Equal(t, chatFallback, resp.Response)
}

func TestRecentKeepsChatWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	for i := range 5 {
		f.agent.Process(context.Background(), fmt.Sprintf("question %d", i), Options{})
	}
	assert.Len(t, f.agent.History(), 10)

	recent := f.agent.recent()
	assert.Len(t, strings.Split(recent, "\n"), DefaultChatWindow)
	assert.NotContains(t, recent, "question 1")
	assert.Contains(t, recent, "USER: question 4")

	empty := newFixture(t, nil, nil)
	assert.Equal(t, "No previous conversation.", empty.agent.recent())
}

func TestClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	f.agent.Process(context.Background(), "hello", Options{})
	f.agent.Clear()

	assert.Empty(t, f.agent.History())
	assert.Equal(t, []event.Type{event.TypeAgentResponse, event.TypeAgentHistoryCleared}, f.publisher.types())
}
