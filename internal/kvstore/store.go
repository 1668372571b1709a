// Package kvstore persists small JSON snapshots under fixed keys in the
// application's SQLite database.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
)

// Keys used by the timer subsystem. Each is read and written independently.
const (
	KeyActiveTimer = "active_timer"
	KeyDirtyTasks  = "dirty_tasks"
)

// Store is a string-keyed snapshot store
type Store interface {
	// Get returns the value and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SQLiteStore implements Store over the kv_snapshots table
type SQLiteStore struct {
	db          *sql.DB
	retryConfig *apperrors.RetryConfig
	logger      logging.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a snapshot store on an open, migrated database
func NewSQLiteStore(db *sql.DB, logger logging.Logger) *SQLiteStore {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLiteStore{
		db:          db,
		retryConfig: apperrors.DefaultRetryConfig(),
		logger:      logger,
	}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_snapshots WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return apperrors.WrapStoreErrorWithContext("kv.Get", err, map[string]string{"key": key})
	}, "kv.Get")
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv_snapshots (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC())
		return apperrors.WrapStoreErrorWithContext("kv.Set", err, map[string]string{"key": key})
	}, "kv.Set")
	if err == nil {
		logging.LogOperation(s.logger, "kv.Set", time.Since(start), map[string]interface{}{
			"key":   key,
			"bytes": len(value),
		})
	}
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv_snapshots WHERE key = ?`, key)
		return apperrors.WrapStoreErrorWithContext("kv.Delete", err, map[string]string{"key": key})
	}, "kv.Delete")
}
