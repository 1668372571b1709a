// Package config loads application settings from defaults, an optional
// config.yaml in the data directory and FOCUSTRACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"focustrack/internal/database"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/timer"
)

// EnvPrefix prefixes every environment override, e.g. FOCUSTRACK_TIMER_TICK_INTERVAL
const EnvPrefix = "FOCUSTRACK"

// FileName is the config file looked up in the data directory
const FileName = "config.yaml"

// Config is the full application configuration
type Config struct {
	Environment string      `yaml:"environment" mapstructure:"environment"`
	LogLevel    string      `yaml:"log_level" mapstructure:"log_level"`
	DataDir     string      `yaml:"data_dir" mapstructure:"data_dir"`
	Timer       TimerConfig `yaml:"timer" mapstructure:"timer"`
	HTTP        HTTPConfig  `yaml:"http" mapstructure:"http"`
}

// TimerConfig controls the heartbeat, periodic flush and write bounds
type TimerConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// HTTPConfig controls the local API server
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultDataDir returns <user config dir>/focustrack, or ./.focustrack when
// the user config dir is unknown
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".focustrack"
	}
	return filepath.Join(dir, "focustrack")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("timer.tick_interval", time.Second)
	v.SetDefault("timer.flush_interval", 30*time.Second)
	v.SetDefault("timer.write_timeout", 5*time.Second)
	v.SetDefault("http.addr", "127.0.0.1:7420")
}

// Load builds the configuration. dataDir overrides the data directory when
// non-empty; the config file is read from the resolved data directory if present.
func Load(dataDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dataDir != "" {
		v.Set("data_dir", dataDir)
	}

	path := filepath.Join(v.GetString("data_dir"), FileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "test", "production":
	default:
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.Timer.TickInterval < 0 {
		return fmt.Errorf("timer.tick_interval cannot be negative")
	}
	if c.Timer.FlushInterval < 0 {
		return fmt.Errorf("timer.flush_interval cannot be negative")
	}
	if c.Timer.WriteTimeout <= 0 {
		return fmt.Errorf("timer.write_timeout must be positive")
	}
	return nil
}

// Level returns the parsed log level
func (c *Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// Database returns the database configuration for this environment and data directory
func (c *Config) Database() (*database.Config, error) {
	dbConfig := database.ConfigForEnvironment(c.Environment, c.DataDir)
	if err := dbConfig.LoadFromEnvironment(); err != nil {
		return nil, err
	}
	return dbConfig, nil
}

// Engine returns the timer engine configuration
func (c *Config) Engine() timer.Config {
	return timer.Config{
		TickInterval: c.Timer.TickInterval,
		WriteTimeout: c.Timer.WriteTimeout,
	}
}

// YAML renders the configuration as it would appear in config.yaml
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile saves the configuration to <data dir>/config.yaml
func (c *Config) WriteFile() (string, error) {
	data, err := c.YAML()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.DataDir, FileName)
	return path, os.WriteFile(path, data, 0o644)
}
