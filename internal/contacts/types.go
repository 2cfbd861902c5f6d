package contacts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyName is returned when a name is empty or whitespace only.
	ErrEmptyName = errors.New("contact name is empty")
	// ErrInvalidKey is returned when a phone number has no digits.
	ErrInvalidKey = errors.New("phone number is not resolvable")
)

// Contact is one directory entry keyed by its normalized phone number.
type Contact struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	UserDefined bool      `json:"user_defined"`
	AliasOf     string    `json:"alias_of,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsAlias reports whether the entry was created from a suffix match on another key.
func (c Contact) IsAlias() bool {
	return c.AliasOf != ""
}

// Store persists directory entries. List returns entries in insertion order.
type Store interface {
	List(ctx context.Context) ([]Contact, error)
	Upsert(ctx context.Context, contact Contact) error
	Delete(ctx context.Context, key string) error
}
