package database

import (
	"context"
	"database/sql"
)

// Service abstracts connection management and migrations for the SQLite file
// shared by the event store and the snapshot store.
type Service interface {
	Connect(ctx context.Context, config *Config) error
	Close() error
	Health(ctx context.Context) error

	DB() *sql.DB

	Migrate(ctx context.Context) error
	GetMigrationVersion(ctx context.Context) (int64, error)

	GetStats() sql.DBStats
}

// MigrationManager runs and inspects schema migrations
type MigrationManager interface {
	RunMigrations(ctx context.Context) error
	GetCurrentVersion(ctx context.Context) (int64, error)
	ValidateMigrations() error
}
