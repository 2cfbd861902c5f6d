package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/logger"
)

// DefaultSearchLimit is used when Search is called without a positive limit.
const DefaultSearchLimit = 5

// Store is the append-only conversation log. Query failures are logged and
// reported as empty results; history is context, not a source of truth.
type Store struct {
	index     Index
	embedder  embeddings.Embedder
	publisher event.Publisher
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time

	seqMu   sync.Mutex
	lastSeq int64
}

// NewStore creates a store. A nil location formats datetimes in UTC.
func NewStore(log *slog.Logger, index Index, embedder embeddings.Embedder, publisher event.Publisher, location *time.Location) *Store {
	if location == nil {
		location = time.UTC
	}
	return &Store{
		index:     index,
		embedder:  embedder,
		publisher: publisher,
		location:  location,
		logger:    logger.OrDiscard(log).With(slog.String("service", "conversation")),
		now:       time.Now,
	}
}

// Append stores a new record and returns its id.
func (s *Store) Append(ctx context.Context, in AppendInput) (string, error) {
	contactID := strings.TrimSpace(in.ContactID)
	if contactID == "" {
		return "", ErrEmptyContact
	}
	ts := in.Timestamp
	if ts <= 0 {
		ts = s.now().UnixMilli()
	}
	record := Record{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Text:      in.Text,
		Sender:    in.Sender,
		Receiver:  in.Receiver,
		Timestamp: ts,
		Datetime:  s.Datetime(ts),
		Status:    in.Status,
		Seq:       s.nextSeq(),
	}

	vector, err := s.embedder.Embed(ctx, embedText(record.Text))
	if err != nil {
		s.logger.Error("embed message failed", slog.String("contact_id", contactID), slog.Any("error", err))
		return "", fmt.Errorf("embed message: %w", err)
	}
	if err := s.index.Upsert(ctx, record, vector); err != nil {
		s.logger.Error("store message failed", slog.String("contact_id", contactID), slog.Any("error", err))
		return "", fmt.Errorf("store message: %w", err)
	}
	s.logger.Info("message stored", slog.String("id", record.ID), slog.String("contact_id", contactID))
	if s.publisher != nil {
		s.publisher.Publish(event.New(event.TypeMessageCreated, record))
	}
	return record.ID, nil
}

// History returns the contact's records in ascending time order, keeping the
// most recent limit entries. A limit of zero or less returns everything.
func (s *Store) History(ctx context.Context, contactID string, limit int) []Record {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return []Record{}
	}
	records, err := s.index.ByContact(ctx, contactID)
	if err != nil {
		s.logger.Error("load history failed", slog.String("contact_id", contactID), slog.Any("error", err))
		return []Record{}
	}
	sortRecords(records)
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records
}

// Search returns records similar to query, most similar first.
func (s *Store) Search(ctx context.Context, query, contactID string, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Match{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("embed query failed", slog.Any("error", err))
		return []Match{}
	}
	matches, err := s.index.Similar(ctx, vector, strings.TrimSpace(contactID), limit)
	if err != nil {
		s.logger.Error("similarity search failed", slog.Any("error", err))
		return []Match{}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ListContacts returns the distinct contact ids seen across all records, sorted.
func (s *Store) ListContacts(ctx context.Context) []string {
	ids, err := s.index.ContactIDs(ctx)
	if err != nil {
		s.logger.Error("list contacts failed", slog.Any("error", err))
		return []string{}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Purge deletes every record of the contact and reports whether any existed.
func (s *Store) Purge(ctx context.Context, contactID string) bool {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return false
	}
	deleted, err := s.index.DeleteContact(ctx, contactID)
	if err != nil {
		s.logger.Error("purge conversation failed", slog.String("contact_id", contactID), slog.Any("error", err))
		return false
	}
	if deleted > 0 {
		s.logger.Info("conversation purged", slog.String("contact_id", contactID), slog.Int("count", deleted))
	}
	return deleted > 0
}

// Datetime formats an epoch-millisecond timestamp in the store's location.
func (s *Store) Datetime(ts int64) string {
	return time.UnixMilli(ts).In(s.location).Format(time.RFC3339)
}

func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp < records[j].Timestamp
		}
		return records[i].Seq < records[j].Seq
	})
}

func embedText(text string) string {
	if strings.TrimSpace(text) == "" {
		return "(empty message)"
	}
	return text
}
