package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements Store on the session_snapshots table.
type SQLStore struct {
	DB *sql.DB

	upsert string
	load   string
	clear  string
	now    func() time.Time
}

// NewPGStore returns a SQLStore using Postgres placeholders.
func NewPGStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		DB: db,
		upsert: `
INSERT INTO session_snapshots (snapshot_key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (snapshot_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		load:  `SELECT value FROM session_snapshots WHERE snapshot_key = $1`,
		clear: `DELETE FROM session_snapshots WHERE snapshot_key = $1`,
		now:   time.Now,
	}
}

// NewSQLiteStore returns a SQLStore using sqlite placeholders.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		DB: db,
		upsert: `
INSERT INTO session_snapshots (snapshot_key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (snapshot_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		load:  `SELECT value FROM session_snapshots WHERE snapshot_key = ?`,
		clear: `DELETE FROM session_snapshots WHERE snapshot_key = ?`,
		now:   time.Now,
	}
}

func (s *SQLStore) Save(ctx context.Context, key string, value []byte) error {
	if _, err := s.DB.ExecContext(ctx, s.upsert, key, string(value), s.now().UTC()); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	if err := s.DB.QueryRowContext(ctx, s.load, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLStore) Clear(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, s.clear, key); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", key, err)
	}
	return nil
}
