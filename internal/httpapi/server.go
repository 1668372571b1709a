// Package httpapi exposes the timer and task operations as a local JSON API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/types"
)

// Service is what the handlers need from the application
type Service interface {
	StartTimer(ctx context.Context, taskID int64) error
	StopTimer(ctx context.Context, splitAcrossDays bool) error
	SyncTimer()
	ResumeTimer()
	Status() types.TimerStatus

	DirtySnapshot() map[int64]types.DirtyTaskRecord
	DirtyEntry(taskID int64) (types.DirtyTaskRecord, bool)
	ClearDirty(taskID int64)
	Flush(ctx context.Context) error

	TasksForDate(ctx context.Context, date time.Time) ([]types.Occurrence, error)
	CreateTask(ctx context.Context, event types.NewEvent) (types.Task, error)
	UpdateTask(ctx context.Context, update types.EventUpdate) (types.Task, error)
	DeleteTask(ctx context.Context, taskID int64) error
	Summary(ctx context.Context, from, to time.Time) ([]types.TaskSummary, error)
}

// Server is the local API server
type Server struct {
	svc    Service
	router *gin.Engine
	logger logging.Logger
	http   *http.Server
}

// NewServer builds the router. Gin runs in release mode outside development.
func NewServer(svc Service, logger logging.Logger, debug bool) *Server {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(logging.GinRecovery(logger), logging.GinMiddleware(logger))

	s := &Server{svc: svc, router: router, logger: logger}

	api := router.Group("/api")
	{
		api.GET("/timer", s.handleStatus)
		api.POST("/timer/start/:id", s.handleStart)
		api.POST("/timer/stop", s.handleStop)
		api.POST("/timer/sync", s.handleSync)
		api.POST("/timer/resume", s.handleResume)

		api.GET("/dirty", s.handleDirtyList)
		api.GET("/dirty/:id", s.handleDirtyGet)
		api.DELETE("/dirty/:id", s.handleDirtyClear)
		api.POST("/flush", s.handleFlush)

		api.GET("/tasks", s.handleTasksForDate)
		api.POST("/tasks", s.handleCreateTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.GET("/summary", s.handleSummary)
	}

	return s
}

// Handler returns the router for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP API stopped")
	return nil
}
