package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	dberrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteService implements Service for a single SQLite file.
//
// Lifecycle:
// 1. Create service with NewSQLiteService()
// 2. Connect with Connect()
// 3. Run Migrate() (or rely on Open)
// 4. Hand DB() to the stores
// 5. Close()
type SQLiteService struct {
	mu              sync.RWMutex
	db              *sql.DB
	config          *Config
	migrationRunner MigrationManager
	logger          logging.Logger
}

var _ Service = (*SQLiteService)(nil)

// NewSQLiteService creates a new SQLite database service
func NewSQLiteService(logger logging.Logger) *SQLiteService {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLiteService{logger: logger}
}

// Open connects and, when AutoMigrate is set, migrates in one step
func Open(ctx context.Context, config *Config, logger logging.Logger) (*SQLiteService, error) {
	service := NewSQLiteService(logger)
	if err := service.Connect(ctx, config); err != nil {
		return nil, err
	}
	if config.AutoMigrate {
		if err := service.Migrate(ctx); err != nil {
			service.Close()
			return nil, err
		}
	}
	return service, nil
}

// Connect establishes a connection to the SQLite database
func (s *SQLiteService) Connect(ctx context.Context, config *Config) error {
	if err := config.Validate(); err != nil {
		return dberrors.HandleValidationError("Connect", "config", config.Path, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// drop any previous connection so reconnects do not leak
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close existing database connection", "error", err)
		}
		s.db = nil
		s.migrationRunner = nil
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return dberrors.HandleConnectionError("Connect", fmt.Sprintf("failed to open database: %v", err))
	}

	s.configureConnectionPool(db, config)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return dberrors.HandleConnectionError("Connect", fmt.Sprintf("failed to ping database: %v", err))
	}

	s.db = db
	s.config = config
	s.migrationRunner = NewMigrationRunner(db, s.logger)

	s.logger.Info("Connected to SQLite database", "path", config.Path)
	return nil
}

// Close closes the database connection
func (s *SQLiteService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return dberrors.HandleConnectionError("Close", fmt.Sprintf("failed to close database: %v", err))
	}

	s.db = nil
	s.migrationRunner = nil

	s.logger.Info("Closed SQLite database connection")
	return nil
}

// Migrate runs database migrations using the migration runner
func (s *SQLiteService) Migrate(ctx context.Context) error {
	s.mu.RLock()
	db, runner := s.db, s.migrationRunner
	s.mu.RUnlock()

	if db == nil {
		return dberrors.HandleConnectionError("Migrate", "database not connected")
	}
	if runner == nil {
		return dberrors.HandleValidationError("Migrate", "migrationRunner", "nil", "migration runner not initialized")
	}

	if err := runner.ValidateMigrations(); err != nil {
		return dberrors.WrapStoreErrorWithContext("Migrate", err, map[string]string{"phase": "validation"})
	}
	if err := runner.RunMigrations(ctx); err != nil {
		return dberrors.WrapStoreErrorWithContext("Migrate", err, map[string]string{"phase": "execution"})
	}
	return nil
}

// Health pings the database and runs a trivial query
func (s *SQLiteService) Health(ctx context.Context) error {
	db := s.DB()
	if db == nil {
		return dberrors.HandleConnectionError("Health", "database not connected")
	}

	if err := db.PingContext(ctx); err != nil {
		return dberrors.WrapStoreErrorWithContext("Health", err, map[string]string{"phase": "ping"})
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return dberrors.WrapStoreErrorWithContext("Health", err, map[string]string{"phase": "query"})
	}
	if result != 1 {
		return dberrors.HandleValidationError("Health", "query_result", fmt.Sprintf("%d", result), "expected result 1")
	}
	return nil
}

// DB returns the underlying connection pool
func (s *SQLiteService) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// GetMigrationVersion returns the current migration version
func (s *SQLiteService) GetMigrationVersion(ctx context.Context) (int64, error) {
	s.mu.RLock()
	db, runner := s.db, s.migrationRunner
	s.mu.RUnlock()

	if db == nil {
		return 0, dberrors.HandleConnectionError("GetMigrationVersion", "database not connected")
	}
	version, err := runner.GetCurrentVersion(ctx)
	if err != nil {
		return 0, dberrors.WrapStoreError("GetMigrationVersion", err)
	}
	return version, nil
}

// GetStats returns connection pool statistics
func (s *SQLiteService) GetStats() sql.DBStats {
	db := s.DB()
	if db == nil {
		return sql.DBStats{}
	}
	return db.Stats()
}

// configureConnectionPool sizes the pool for SQLite: one connection unless
// WAL is on, and at most four even then.
func (s *SQLiteService) configureConnectionPool(db *sql.DB, config *Config) {
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if config.ForceSingleConnection || !strings.EqualFold(config.JournalMode, "WAL") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		s.logger.Debug("Configured SQLite for single connection mode", "journalMode", config.JournalMode)
		return
	}

	maxConns := min(max(config.MaxConnections, 1), 4)
	idleConns := max(min(config.MaxIdleConns, maxConns), 1)

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idleConns)
	s.logger.Debug("Configured SQLite connection pool (WAL mode)",
		"maxOpenConns", maxConns, "maxIdleConns", idleConns)
}
