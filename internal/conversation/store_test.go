package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/event"
)

type brokenIndex struct{}

func (brokenIndex) Upsert(context.Context, Record, []float32) error { return errors.New("down") }
func (brokenIndex) ByContact(context.Context, string) ([]Record, error) {
	return nil, errors.New("down")
}
func (brokenIndex) Similar(context.Context, []float32, string, int) ([]Match, error) {
	return nil, errors.New("down")
}
func (brokenIndex) ContactIDs(context.Context) ([]string, error) { return nil, errors.New("down") }
func (brokenIndex) DeleteContact(context.Context, string) (int, error) {
	return 0, errors.New("down")
}

type recordingPublisher struct {
	events []event.Event
}

func (p *recordingPublisher) Publish(evt event.Event) {
	p.events = append(p.events, evt)
}

func newTestStore(t *testing.T) (*Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewStore(nil, NewMemoryIndex(), embeddings.NewHashEmbedder(32), pub, time.UTC), pub
}

func TestAppendRoundTrip(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC).UnixMilli()
	id, err := store.Append(ctx, AppendInput{
		ContactID: "919876543210",
		Text:      "Can we meet tomorrow at 3pm?",
		Sender:    "919876543210",
		Receiver:  "business",
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	history := store.History(ctx, "919876543210", 0)
	require.Len(t, history, 1)
	want := Record{
		ID:        id,
		ContactID: "919876543210",
		Text:      "Can we meet tomorrow at 3pm?",
		Sender:    "919876543210",
		Receiver:  "business",
		Timestamp: ts,
		Datetime:  "2025-10-13T09:30:00Z",
	}
	if diff := cmp.Diff(want, history[0], cmpopts.IgnoreFields(Record{}, "Seq")); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, pub.events, 1)
	assert.Equal(t, event.TypeMessageCreated, pub.events[0].Type)
}

func TestAppendDefaultsTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	_, err := store.Append(context.Background(), AppendInput{ContactID: "1", Text: "hi"})
	require.NoError(t, err)
	history := store.History(context.Background(), "1", 0)
	require.Len(t, history, 1)
	assert.Equal(t, fixed.UnixMilli(), history[0].Timestamp)
}

func TestAppendRequiresContact(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Append(context.Background(), AppendInput{Text: "hi"})
	assert.ErrorIs(t, err, ErrEmptyContact)
}

func TestHistoryLimitKeepsMostRecent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, in := range []AppendInput{
		{ContactID: "c", Text: "third", Timestamp: 3000},
		{ContactID: "c", Text: "first", Timestamp: 1000},
		{ContactID: "c", Text: "second", Timestamp: 2000},
		{ContactID: "other", Text: "elsewhere", Timestamp: 2500},
	} {
		_, err := store.Append(ctx, in)
		require.NoError(t, err)
	}

	history := store.History(ctx, "c", 2)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Text)
	assert.Equal(t, "third", history[1].Text)
}

func TestHistoryKeepsInsertionOrderForTies(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		_, err := store.Append(ctx, AppendInput{ContactID: "c", Text: text, Timestamp: 5000})
		require.NoError(t, err)
	}
	var got []string
	for _, record := range store.History(ctx, "c", 0) {
		got = append(got, record.Text)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSearchRanksAndFilters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, in := range []AppendInput{
		{ContactID: "a", Text: "invoice for october"},
		{ContactID: "a", Text: "see you tomorrow"},
		{ContactID: "b", Text: "invoice for october"},
	} {
		_, err := store.Append(ctx, in)
		require.NoError(t, err)
	}

	matches := store.Search(ctx, "invoice for october", "", 10)
	require.Len(t, matches, 3)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)

	filtered := store.Search(ctx, "invoice for october", "b", 10)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].ContactID)

	assert.Empty(t, store.Search(ctx, "   ", "", 10))
}

func TestListContactsAndPurge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "b"} {
		_, err := store.Append(ctx, AppendInput{ContactID: id, Text: "hello"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b"}, store.ListContacts(ctx))

	assert.True(t, store.Purge(ctx, "b"))
	assert.False(t, store.Purge(ctx, "b"))
	assert.Equal(t, []string{"a"}, store.ListContacts(ctx))
	assert.Empty(t, store.History(ctx, "b", 0))
}

func TestIndexFailuresDegradeToEmpty(t *testing.T) {
	store := NewStore(nil, brokenIndex{}, embeddings.NewHashEmbedder(8), nil, nil)
	ctx := context.Background()

	_, err := store.Append(ctx, AppendInput{ContactID: "c", Text: "hi"})
	assert.Error(t, err)
	assert.Empty(t, store.History(ctx, "c", 0))
	assert.Empty(t, store.Search(ctx, "hi", "", 3))
	assert.Empty(t, store.ListContacts(ctx))
	assert.False(t, store.Purge(ctx, "c"))
}

func TestBuildQdrantFilter(t *testing.T) {
	t.Parallel()

	filter := buildQdrantFilter(map[string]any{
		"contact_id": "919876543210",
		"timestamp":  map[string]any{"gte": 1000},
	})
	if filter == nil {
		t.Fatalf("expected filter")
	}
	if len(filter.Must) != 2 {
		t.Fatalf("expected two conditions, got %d", len(filter.Must))
	}
	if buildQdrantFilter(map[string]any{"contact_id": ""}) != nil {
		t.Fatal("expected empty contact id to produce no filter")
	}
}

func TestParseQdrantEndpoint(t *testing.T) {
	t.Parallel()

	host, port, tls, err := parseQdrantEndpoint("https://qdrant.example.com:7000")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.example.com", host)
	assert.Equal(t, 7000, port)
	assert.True(t, tls)

	host, port, tls, err = parseQdrantEndpoint("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 6334, port)
	assert.False(t, tls)
}

func TestRecordPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	record := Record{ID: "id-1", ContactID: "c", Text: "hi", Sender: "c", Receiver: "business", Timestamp: 42, Datetime: "x", Seq: 7}
	got := recordFromPayload("id-1", recordPayload(record))
	assert.Equal(t, record, got)
	assert.NotContains(t, recordPayload(record), "status")

	record.Status = StatusFailed
	assert.Equal(t, record, recordFromPayload("id-1", recordPayload(record)))
	assert.InDelta(t, 0.0, clampSimilarity(-0.3), 1e-9)
}
