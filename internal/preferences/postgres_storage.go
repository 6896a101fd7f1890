package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is a PostgreSQL Storage. Rows are scoped to one client
// installation so several installations can share a database.
type PostgresStorage struct {
	pool           *pgxpool.Pool
	installationID string
}

// NewPostgresStorage creates a PostgreSQL storage for the given installation.
func NewPostgresStorage(pool *pgxpool.Pool, installationID string) *PostgresStorage {
	return &PostgresStorage{pool: pool, installationID: installationID}
}

// EnsureSchema creates the preferences table if it does not exist.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS user_preferences (
			installation_id TEXT NOT NULL,
			key             TEXT NOT NULL,
			value           BYTEA NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (installation_id, key)
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create user_preferences table: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *PostgresStorage) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value
		FROM user_preferences
		WHERE installation_id = $1 AND key = $2
	`

	var value []byte
	err := s.pool.QueryRow(ctx, query, s.installationID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set upserts the value stored under key.
func (s *PostgresStorage) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO user_preferences (installation_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (installation_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, s.installationID, key, value, time.Now())
	return err
}

// Delete removes key.
func (s *PostgresStorage) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM user_preferences WHERE installation_id = $1 AND key = $2`
	_, err := s.pool.Exec(ctx, query, s.installationID, key)
	return err
}

// Ensure PostgresStorage implements Storage interface.
var _ Storage = (*PostgresStorage)(nil)
