package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"focustrack/internal/database"
	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on the events and event_day_totals tables
type SQLiteStore struct {
	db          *sql.DB
	q           querier
	inTx        bool
	retryConfig *apperrors.RetryConfig
	predicate   OccurrencePredicate
	logger      logging.Logger
	now         func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates an event store on a connected, migrated database service
func NewSQLiteStore(dbService database.Service, logger logging.Logger) *SQLiteStore {
	return NewSQLiteStoreWithConfig(dbService.DB(), nil, nil, logger)
}

// NewSQLiteStoreWithConfig creates an event store with a custom retry policy and
// occurrence predicate. Nil arguments take the defaults.
func NewSQLiteStoreWithConfig(db *sql.DB, retryConfig *apperrors.RetryConfig, predicate OccurrencePredicate, logger logging.Logger) *SQLiteStore {
	if retryConfig == nil {
		retryConfig = apperrors.DefaultRetryConfig()
	}
	if predicate == nil {
		predicate = RRulePredicate{}
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLiteStore{
		db:          db,
		q:           db,
		retryConfig: retryConfig,
		predicate:   predicate,
		logger:      logger,
		now:         time.Now,
	}
}

// withTx returns a copy bound to tx. Retries happen around the whole
// transaction, so statements inside it run once.
func (s *SQLiteStore) withTx(tx *sql.Tx) *SQLiteStore {
	clone := *s
	clone.q = tx
	clone.inTx = true
	clone.retryConfig = apperrors.NoRetryConfig()
	return &clone
}

// WithTransaction runs fn against a transaction-bound store, retrying the
// whole transaction on transient failures
func (s *SQLiteStore) WithTransaction(ctx context.Context, fn func(store Store) error) error {
	if s.inTx {
		return fn(s)
	}
	start := time.Now()

	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			storeErr := apperrors.NewStoreError("WithTransaction.Begin", err, apperrors.ClassifyError(err))
			s.logFailure(storeErr, "WithTransaction.Begin", nil)
			return storeErr
		}

		committed := false
		defer func() {
			if committed {
				return
			}
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Debug("Failed to rollback transaction", "rollback_error", rbErr)
			}
		}()

		if err := fn(s.withTx(tx)); err != nil {
			s.logger.Debug("Transaction function failed", "error", err)
			return err
		}

		if err := tx.Commit(); err != nil {
			storeErr := apperrors.NewStoreError("WithTransaction.Commit", err, apperrors.ClassifyError(err))
			s.logFailure(storeErr, "WithTransaction.Commit", nil)
			return storeErr
		}
		committed = true
		return nil
	}, "WithTransaction")

	if err == nil {
		logging.LogOperation(s.logger, "WithTransaction", time.Since(start), nil)
	}
	return err
}

// logFailure logs retryable errors at debug level and everything else as errors
func (s *SQLiteStore) logFailure(err *apperrors.StoreError, op string, context map[string]interface{}) {
	if err.IsRetryable() {
		s.logger.Debug("Retryable error in "+op, "error", err.Err)
		return
	}
	logging.LogError(s.logger, err, op, context)
}
