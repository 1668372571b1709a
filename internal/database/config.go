package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// parseBoolEnv reads an environment variable and parses it as a boolean.
// Returns the parsed value and whether the variable held a recognised value.
func parseBoolEnv(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}

	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed, true
	}

	switch strings.ToLower(value) {
	case "yes", "y", "on":
		return true, true
	case "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// Config holds all database configuration options
type Config struct {
	// Connection settings
	Path                  string        `json:"path" yaml:"path" mapstructure:"path"`
	MaxConnections        int           `json:"maxConnections" yaml:"maxConnections" mapstructure:"max_connections"`
	MaxIdleConns          int           `json:"maxIdleConns" yaml:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime       time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime       time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime" mapstructure:"conn_max_idle_time"`
	ForceSingleConnection bool          `json:"forceSingleConnection" yaml:"forceSingleConnection" mapstructure:"force_single_connection"`

	// Migrations are embedded; this only controls whether they run on startup
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate" mapstructure:"auto_migrate"`

	// SQLite pragmas
	JournalMode     string `json:"journalMode" yaml:"journalMode" mapstructure:"journal_mode"`
	SynchronousMode string `json:"synchronousMode" yaml:"synchronousMode" mapstructure:"synchronous_mode"`
	CacheSize       int    `json:"cacheSize" yaml:"cacheSize" mapstructure:"cache_size"`        // KB
	BusyTimeout     int    `json:"busyTimeout" yaml:"busyTimeout" mapstructure:"busy_timeout"` // ms
	ForeignKeys     bool   `json:"foreignKeys" yaml:"foreignKeys" mapstructure:"foreign_keys"`

	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path:            "focustrack.db",
		MaxConnections:  4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 24 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,

		AutoMigrate: true,

		JournalMode:     "WAL",
		SynchronousMode: "NORMAL",
		CacheSize:       2000,
		BusyTimeout:     5000,
		ForeignKeys:     true,

		Environment: "production",
	}
}

// DevelopmentConfig returns a configuration for local development
func DevelopmentConfig() *Config {
	config := DefaultConfig()
	config.Path = "focustrack_dev.db"
	config.Environment = "development"
	return config
}

// TestConfig returns an in-memory configuration.
// In-memory SQLite databases are per-connection, so the pool is pinned to one
// connection that is never recycled.
func TestConfig() *Config {
	config := DefaultConfig()
	config.Path = ":memory:"
	config.Environment = "test"
	config.ForceSingleConnection = true
	config.ConnMaxLifetime = 0
	config.ConnMaxIdleTime = 0
	config.JournalMode = "MEMORY"
	config.SynchronousMode = "OFF"
	config.CacheSize = 1000
	config.BusyTimeout = 1000
	return config
}

// ConfigForEnvironment returns a configuration for the given environment,
// placing file databases under dataDir.
func ConfigForEnvironment(env, dataDir string) *Config {
	var config *Config
	switch env {
	case "development":
		config = DevelopmentConfig()
	case "test":
		return TestConfig()
	default:
		config = DefaultConfig()
	}
	if dataDir != "" {
		config.Path = filepath.Join(dataDir, config.Path)
	}
	return config
}

// LoadFromEnvironment applies FOCUSTRACK_DB_* overrides
func (c *Config) LoadFromEnvironment() error {
	if path := os.Getenv("FOCUSTRACK_DB_PATH"); path != "" {
		c.Path = path
	}

	if maxConns := os.Getenv("FOCUSTRACK_DB_MAX_CONNECTIONS"); maxConns != "" {
		val, err := strconv.Atoi(maxConns)
		if err != nil || val <= 0 {
			return fmt.Errorf("invalid FOCUSTRACK_DB_MAX_CONNECTIONS %q", maxConns)
		}
		c.MaxConnections = val
	}

	if maxIdle := os.Getenv("FOCUSTRACK_DB_MAX_IDLE_CONNECTIONS"); maxIdle != "" {
		val, err := strconv.Atoi(maxIdle)
		if err != nil || val < 0 {
			return fmt.Errorf("invalid FOCUSTRACK_DB_MAX_IDLE_CONNECTIONS %q", maxIdle)
		}
		c.MaxIdleConns = val
	}

	if lifetime := os.Getenv("FOCUSTRACK_DB_CONN_MAX_LIFETIME"); lifetime != "" {
		val, err := time.ParseDuration(lifetime)
		if err != nil {
			return fmt.Errorf("invalid FOCUSTRACK_DB_CONN_MAX_LIFETIME: %w", err)
		}
		c.ConnMaxLifetime = val
	}

	if autoMigrate, present := parseBoolEnv("FOCUSTRACK_DB_AUTO_MIGRATE"); present {
		c.AutoMigrate = autoMigrate
	}

	if journalMode := os.Getenv("FOCUSTRACK_DB_JOURNAL_MODE"); journalMode != "" {
		c.JournalMode = strings.ToUpper(journalMode)
	}

	if syncMode := os.Getenv("FOCUSTRACK_DB_SYNCHRONOUS_MODE"); syncMode != "" {
		c.SynchronousMode = strings.ToUpper(syncMode)
	}

	if busyTimeout := os.Getenv("FOCUSTRACK_DB_BUSY_TIMEOUT"); busyTimeout != "" {
		val, err := strconv.Atoi(busyTimeout)
		if err != nil || val < 0 {
			return fmt.Errorf("invalid FOCUSTRACK_DB_BUSY_TIMEOUT %q", busyTimeout)
		}
		c.BusyTimeout = val
	}

	if foreignKeys, present := parseBoolEnv("FOCUSTRACK_DB_FOREIGN_KEYS"); present {
		c.ForeignKeys = foreignKeys
	}

	if forceSingle, present := parseBoolEnv("FOCUSTRACK_DB_FORCE_SINGLE_CONNECTION"); present {
		c.ForceSingleConnection = forceSingle
	}

	return nil
}

// Validate validates the configuration and creates the database directory
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if !c.IsInMemory() {
		if dir := filepath.Dir(c.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	if c.MaxConnections <= 0 {
		return fmt.Errorf("maxConnections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("maxIdleConns cannot be negative, got %d", c.MaxIdleConns)
	}
	if c.MaxIdleConns > c.MaxConnections {
		return fmt.Errorf("maxIdleConns (%d) cannot be greater than maxConnections (%d)", c.MaxIdleConns, c.MaxConnections)
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return fmt.Errorf("connection lifetimes cannot be negative")
	}

	switch strings.ToUpper(c.JournalMode) {
	case "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("invalid journalMode: %s", c.JournalMode)
	}
	if c.IsInMemory() && strings.EqualFold(c.JournalMode, "WAL") {
		return fmt.Errorf("journalMode cannot be WAL when using in-memory database")
	}

	switch strings.ToUpper(c.SynchronousMode) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("invalid synchronousMode: %s", c.SynchronousMode)
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("cacheSize must be positive, got %d", c.CacheSize)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busyTimeout cannot be negative, got %d", c.BusyTimeout)
	}

	switch c.Environment {
	case "development", "test", "production":
	default:
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	return nil
}

// GetConnectionString builds the go-sqlite3 DSN with pragma parameters
func (c *Config) GetConnectionString() string {
	values := url.Values{}
	if c.ForeignKeys {
		values.Set("_foreign_keys", "on")
	} else {
		values.Set("_foreign_keys", "off")
	}
	values.Set("_journal_mode", c.JournalMode)
	values.Set("_synchronous", c.SynchronousMode)
	// negative cache size is interpreted by SQLite as KB
	values.Set("_cache_size", strconv.Itoa(-c.CacheSize))
	values.Set("_busy_timeout", strconv.Itoa(c.BusyTimeout))

	path := c.Path
	if strings.ContainsAny(path, "?&") {
		path = strings.ReplaceAll(path, "?", "%3F")
		path = strings.ReplaceAll(path, "&", "%26")
	}

	return path + "?" + values.Encode()
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// IsInMemory returns true if the database is configured to use in-memory storage
func (c *Config) IsInMemory() bool {
	return c.Path == ":memory:"
}
