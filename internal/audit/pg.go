package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore persists the audit trail in Postgres.
type PGStore struct {
	db *sql.DB
}

// OpenPG connects to Postgres at dsn.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

var _ Recorder = (*PGStore)(nil)

// Append inserts one entry. The table is append-only; there is no update
// or delete path.
func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	var fieldsJSON []byte
	if len(entry.Fields) > 0 {
		var err error
		fieldsJSON, err = json.Marshal(entry.Fields)
		if err != nil {
			return fmt.Errorf("audit: encode fields: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events(id, occurred_at, actor, organization, action, resource_type, resource_id, fields)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.OccurredAt, entry.Actor, entry.Organization, entry.Action, entry.ResourceType, entry.ResourceID, fieldsJSON)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
