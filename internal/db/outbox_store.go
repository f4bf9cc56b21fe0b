package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EnsureSchema creates the outbox table if it does not exist yet
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS voice_outbox (
			chat_key   TEXT PRIMARY KEY,
			records    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create voice_outbox table: %w", err)
	}

	return nil
}

// Get retrieves the value stored under a key. The second return reports
// whether the key exists.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT records FROM voice_outbox WHERE chat_key = $1`

	var value string
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return value, true, nil
}

// Set stores a value under a key, replacing any previous value
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO voice_outbox (chat_key, records, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_key)
		DO UPDATE SET records = EXCLUDED.records, updated_at = now()
	`

	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Del removes a key
func (s *PostgresStore) Del(ctx context.Context, key string) error {
	query := `DELETE FROM voice_outbox WHERE chat_key = $1`

	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}
