// Package cli implements the focustrack command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"focustrack/internal/app"
	"focustrack/internal/config"
	"focustrack/internal/infrastructure/logging"
)

var (
	dataDir      string
	verbose      bool
	rootCmd      *cobra.Command
	registerOnce sync.Once
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "focustrack",
		Short: "Focustrack - task timer with per-day accounting",
		Long: `Focustrack times work against tasks and records how many seconds were spent
on each calendar day.

A started timer survives restarts: run "focustrack start <id>" now and
"focustrack stop" later, or keep "focustrack serve" running for the local API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func registerCommands() {
	registerOnce.Do(func() {
		rootCmd.AddCommand(taskCmd)
		rootCmd.AddCommand(startCmd)
		rootCmd.AddCommand(stopCmd)
		rootCmd.AddCommand(statusCmd)
		rootCmd.AddCommand(syncCmd)
		rootCmd.AddCommand(flushCmd)
		rootCmd.AddCommand(reportCmd)
		rootCmd.AddCommand(serveCmd)
		rootCmd.AddCommand(configCmd)
	})
}

// Execute runs the root command
func Execute(version string) error {
	registerCommands()

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// commandLogger keeps one-shot commands quiet unless --verbose is set
func commandLogger(cfg *config.Config) logging.Logger {
	level := cfg.Level()
	if !verbose && level < logging.LevelWarn {
		level = logging.LevelWarn
	}
	return logging.NewLogger(os.Stderr, level)
}

// withApp opens the application, runs fn and shuts down. A running timer is
// left in place so the next command picks it up.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.NewApp(ctx, cfg, app.Options{Logger: commandLogger(cfg)})
	if err != nil {
		return err
	}
	if err := a.Startup(ctx); err != nil {
		a.Shutdown(ctx)
		return err
	}

	runErr := fn(ctx, a)
	if err := a.Shutdown(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
