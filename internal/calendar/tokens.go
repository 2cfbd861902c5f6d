package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github.com/memohai/wabiz/internal/db"
)

// ProviderGoogle is the oauth_tokens row used for the calendar account.
const ProviderGoogle = "google"

// TokenStore persists the OAuth token of the connected calendar account.
// Load returns ErrNoCredentials when nothing has been saved.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// MemoryTokenStore keeps the token for the process lifetime.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrNoCredentials
	}
	copied := *s.token
	return &copied, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	if token == nil {
		return errors.New("token is required")
	}
	copied := *token
	s.mu.Lock()
	s.token = &copied
	s.mu.Unlock()
	return nil
}

const (
	loadTokenSQL = `SELECT token FROM oauth_tokens WHERE provider = $1`

	saveTokenSQL = `INSERT INTO oauth_tokens (provider, token, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (provider) DO UPDATE
SET token = EXCLUDED.token,
    updated_at = now()`
)

// PostgresTokenStore keeps the token as JSON in the oauth_tokens table.
type PostgresTokenStore struct {
	conn     db.DBTX
	provider string
}

func NewPostgresTokenStore(conn db.DBTX) *PostgresTokenStore {
	return &PostgresTokenStore{conn: conn, provider: ProviderGoogle}
}

func (s *PostgresTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	var raw []byte
	if err := s.conn.QueryRow(ctx, loadTokenSQL, s.provider).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("load oauth token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return &token, nil
}

func (s *PostgresTokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return errors.New("token is required")
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(ctx, saveTokenSQL, s.provider, raw); err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}
