package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Command
		ok    bool
	}{
		{"double quoted", `send "hello there" to Shubham`, Command{"hello there", "Shubham"}, true},
		{"unquoted", "send good morning to John", Command{"good morning", "John"}, true},
		{"no verb", "hello John", Command{}, false},
		{"single quoted", "Sent 'see you at 5' to Priya Sharma", Command{"see you at 5", "Priya Sharma"}, true},
		{"multiline", "send \"line one\nline two\" to Asha", Command{"line one\nline two", "Asha"}, true},
		{"quoted message mentions to", `send "go to the office" to Ravi`, Command{"go to the office", "Ravi"}, true},
		{"first to splits", "send reminder to pay to Karan", Command{"reminder", "pay to Karan"}, true},
		{"case insensitive", "SEND hi TO Mom", Command{"hi", "Mom"}, true},
		{"empty quoted", `send "" to Ravi`, Command{}, false},
		{"missing recipient", "send hello", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Parse(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeTransport struct {
	sent []whatsapp.Outgoing
	err  error
}

func (f *fakeTransport) Send(_ context.Context, msg whatsapp.Outgoing) (whatsapp.Receipt, error) {
	if f.err != nil {
		return whatsapp.Receipt{}, f.err
	}
	f.sent = append(f.sent, msg)
	return whatsapp.Receipt{MessageID: "wamid.1", To: msg.To}, nil
}

func newFixture(t *testing.T, transport *fakeTransport) (*Executor, *conversation.Store) {
	t.Helper()
	ctx := context.Background()
	dir := contacts.NewDirectory(nil, nil)
	require.NoError(t, dir.SetName(ctx, "919876543210", "Shubham Gupta"))
	store := conversation.NewStore(nil, conversation.NewMemoryIndex(), embeddings.NewHashEmbedder(16), nil, nil)
	exec := NewExecutor(nil, resolver.New(nil, nil, 0), transport, store, dir, "business")
	return exec, store
}

func TestExecutorSendsAndRecords(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	exec, store := newFixture(t, transport)

	result := exec.Process(context.Background(), Request{
		Command:     `send "hello there" to Shubham`,
		Credentials: whatsapp.Credentials{AccessToken: "t", PhoneNumberID: "PID"},
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "919876543210", result.ContactID)
	assert.Equal(t, resolver.MethodExact, result.Method)
	assert.Equal(t, "Message sent to Shubham", result.Message)
	assert.Equal(t, "hello there", result.Text)
	require.NotNil(t, result.Receipt)
	assert.Equal(t, "wamid.1", result.Receipt.MessageID)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "hello there", transport.sent[0].Text)

	history := store.History(context.Background(), "919876543210", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "hello there", history[0].Text)
	assert.Equal(t, "PID", history[0].Sender)
	assert.Equal(t, "919876543210", history[0].Receiver)
}

func TestExecutorRequestAliasesWin(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	exec, _ := newFixture(t, transport)

	result := exec.Process(context.Background(), Request{
		Command: "send hi to shubham",
		Aliases: resolver.FromMap(map[string]string{"shubham": "+1 (555) 010-9999"}),
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "15550109999", result.ContactID)
}

func TestExecutorFailures(t *testing.T) {
	t.Parallel()

	exec, store := newFixture(t, &fakeTransport{})
	result := exec.Process(context.Background(), Request{Command: "hello John"})
	assert.False(t, result.Success)
	assert.Equal(t, UsageHint, result.Error)

	result = exec.Process(context.Background(), Request{Command: "send hi to Zed"})
	assert.False(t, result.Success)
	assert.Equal(t, "Contact 'Zed' not found in aliases", result.Error)

	failing, store2 := newFixture(t, &fakeTransport{err: whatsapp.ErrNotConfigured})
	result = failing.Process(context.Background(), Request{Command: "send hi to Shubham"})
	assert.False(t, result.Success)
	assert.Equal(t, "WhatsApp credentials are not configured on the server.", result.Error)
	attempts := store2.History(context.Background(), "919876543210", 0)
	require.Len(t, attempts, 1)
	assert.Equal(t, "hi", attempts[0].Text)
	assert.Equal(t, conversation.StatusFailed, attempts[0].Status)

	broken, _ := newFixture(t, &fakeTransport{err: errors.New("status 500")})
	result = broken.Process(context.Background(), Request{Command: "send hi to 98765 43210"})
	assert.False(t, result.Success)
	assert.Equal(t, "status 500", result.Error)
	assert.Empty(t, store.ListContacts(context.Background()))
}

func TestExecutorSendKeepsMessageVerbatim(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	exec, store := newFixture(t, transport)
	msg := `I'm sending "the report" to you today.`

	result := exec.Send(context.Background(), Command{Message: msg, Recipient: "Shubham"}, nil, whatsapp.Credentials{})
	require.True(t, result.Success, result.Error)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, msg, transport.sent[0].Text)
	assert.Equal(t, "919876543210", transport.sent[0].To)

	history := store.History(context.Background(), "919876543210", 0)
	require.Len(t, history, 1)
	assert.Equal(t, msg, history[0].Text)
	assert.Empty(t, history[0].Status)

	result = exec.Send(context.Background(), Command{Message: "  ", Recipient: "Shubham"}, nil, whatsapp.Credentials{})
	assert.False(t, result.Success)
	assert.Len(t, transport.sent, 1)
}
