package contacts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/wabiz/internal/db"
)

const (
	listContactsSQL = `SELECT key, name, user_defined, alias_of, created_at, updated_at
FROM contacts
ORDER BY id`

	upsertContactSQL = `INSERT INTO contacts (key, name, user_defined, alias_of, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (key) DO UPDATE
SET name = EXCLUDED.name,
    user_defined = EXCLUDED.user_defined,
    alias_of = EXCLUDED.alias_of,
    updated_at = EXCLUDED.updated_at`

	deleteContactSQL = `DELETE FROM contacts WHERE key = $1`
)

// PostgresStore persists entries in the contacts table.
type PostgresStore struct {
	conn db.DBTX
}

// NewPostgresStore creates a store on top of a pgx pool or transaction.
func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (s *PostgresStore) List(ctx context.Context) ([]Contact, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("contacts db not configured")
	}
	rows, err := s.conn.Query(ctx, listContactsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Contact
	for rows.Next() {
		var (
			item    Contact
			aliasOf pgtype.Text
			created pgtype.Timestamptz
			updated pgtype.Timestamptz
		)
		if err := rows.Scan(&item.Key, &item.Name, &item.UserDefined, &aliasOf, &created, &updated); err != nil {
			return nil, err
		}
		item.AliasOf = db.TextToString(aliasOf)
		item.CreatedAt = db.TimeFromPg(created)
		item.UpdatedAt = db.TimeFromPg(updated)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, contact Contact) error {
	if s.conn == nil {
		return fmt.Errorf("contacts db not configured")
	}
	_, err := s.conn.Exec(ctx, upsertContactSQL,
		contact.Key,
		contact.Name,
		contact.UserDefined,
		db.StringToText(contact.AliasOf),
		pgtype.Timestamptz{Time: contact.CreatedAt, Valid: !contact.CreatedAt.IsZero()},
		pgtype.Timestamptz{Time: contact.UpdatedAt, Valid: !contact.UpdatedAt.IsZero()},
	)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if s.conn == nil {
		return fmt.Errorf("contacts db not configured")
	}
	_, err := s.conn.Exec(ctx, deleteContactSQL, key)
	return err
}
