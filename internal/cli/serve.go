package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"focustrack/internal/app"
	"focustrack/internal/httpapi"
	"focustrack/internal/infrastructure/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the timer with its heartbeat and the local HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(os.Stderr, cfg.Level())
	a, err := app.NewApp(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	if err := a.Startup(ctx); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	server := httpapi.NewServer(a, logger, cfg.Environment == "development")
	runErr := server.Run(ctx, cfg.HTTP.Addr)

	// ctx is cancelled by now; shutdown gets a fresh one
	if err := a.Shutdown(context.Background()); err != nil && runErr == nil {
		return err
	}
	return runErr
}
