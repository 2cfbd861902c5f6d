// Package conversation keeps the per-contact message log and its semantic index.
package conversation

import (
	"context"
	"errors"
)

// ErrEmptyContact is returned when a message has no contact id.
var ErrEmptyContact = errors.New("contact id is required")

// StatusFailed marks an outgoing message whose send was attempted but not
// delivered to the transport. Delivered and inbound records have no status.
const StatusFailed = "failed"

// Record is one stored message. Records are immutable once stored.
type Record struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Timestamp int64  `json:"timestamp"`
	Datetime  string `json:"datetime"`
	Status    string `json:"status,omitempty"`
	// Seq orders records that share a timestamp.
	Seq int64 `json:"-"`
}

// Match is a record returned by similarity search.
type Match struct {
	Record
	Similarity float64 `json:"similarity_score"`
}

// AppendInput describes a message to store. A zero Timestamp means now.
type AppendInput struct {
	ContactID string
	Text      string
	Sender    string
	Receiver  string
	Timestamp int64
	Status    string
}

// Index persists records with their embedding and answers metadata and similarity queries.
type Index interface {
	Upsert(ctx context.Context, record Record, vector []float32) error
	ByContact(ctx context.Context, contactID string) ([]Record, error)
	Similar(ctx context.Context, vector []float32, contactID string, limit int) ([]Match, error)
	ContactIDs(ctx context.Context) ([]string, error)
	DeleteContact(ctx context.Context, contactID string) (int, error)
}
