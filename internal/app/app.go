// Package app wires the stores, task cache and timer engine together and owns
// their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"focustrack/internal/config"
	"focustrack/internal/database"
	"focustrack/internal/eventstore"
	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/kvstore"
	"focustrack/internal/platform"
	"focustrack/internal/tasks"
	"focustrack/internal/timer"
	"focustrack/internal/types"
)

// App is the composition root shared by the CLI and the HTTP API
type App struct {
	cfg    *config.Config
	logger logging.Logger
	clock  timer.Clock

	lock      *platform.InstanceLock
	dbService database.Service
	events    *eventstore.SQLiteStore
	tasks     *tasks.Cache
	active    *timer.ActiveStore
	dirty     *timer.DirtyBuffer
	engine    *timer.Engine

	// writeMu orders flushes against explicit edits of a task's total
	writeMu sync.Mutex

	flushMu   sync.Mutex
	flushStop chan struct{}
	flushDone chan struct{}
}

// Options customise NewApp, mainly for tests
type Options struct {
	Logger logging.Logger
	Clock  timer.Clock
	// SkipInstanceLock lets several apps share a data directory
	SkipInstanceLock bool
}

// NewApp acquires the instance lock, opens and migrates the database and
// builds every component. Call Startup before use and Shutdown when done.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, cfg.Level())
	}
	clock := opts.Clock
	if clock == nil {
		clock = timer.SystemClock()
	}
	apperrors.InstallRetryLogger(logger)

	var lock *platform.InstanceLock
	if !opts.SkipInstanceLock {
		var err error
		lock, err = platform.AcquireInstanceLock(cfg.DataDir)
		if err != nil {
			return nil, err
		}
	}

	dbConfig, err := cfg.Database()
	if err != nil {
		releaseLock(lock, logger)
		return nil, err
	}
	dbService, err := database.Open(ctx, dbConfig, logger)
	if err != nil {
		releaseLock(lock, logger)
		return nil, err
	}

	events := eventstore.NewSQLiteStore(dbService, logger)
	kv := kvstore.NewSQLiteStore(dbService.DB(), logger)
	dirty := timer.NewDirtyBuffer(kv, clock, cfg.Timer.WriteTimeout, logger)
	active := timer.NewActiveStore(kv, cfg.Timer.WriteTimeout, logger)
	cache := tasks.NewCache(events, dirty, logger)
	engine := timer.NewEngine(cfg.Engine(), clock, events, cache, active, dirty, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		clock:     clock,
		lock:      lock,
		dbService: dbService,
		events:    events,
		tasks:     cache,
		active:    active,
		dirty:     dirty,
		engine:    engine,
	}, nil
}

func releaseLock(lock *platform.InstanceLock, logger logging.Logger) {
	if lock == nil {
		return
	}
	if err := lock.Release(); err != nil {
		logger.Warn("Failed to release instance lock", "error", err)
	}
}

// Startup loads tasks, initialises the engine (resuming a persisted timer)
// and starts the periodic flush when one is configured
func (a *App) Startup(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.dbService.Health(healthCtx); err != nil {
		return apperrors.WrapStoreErrorWithContext("startup", err, map[string]string{"operation": "health_check"})
	}

	// the buffer must be hydrated before tasks load so pending time is applied
	a.dirty.EnsureHydrated(ctx)
	if err := a.tasks.Load(ctx); err != nil {
		return err
	}
	if err := a.engine.Init(ctx); err != nil {
		return err
	}

	a.startFlushLoop(a.cfg.Timer.FlushInterval)
	a.logger.Info("Application started", "environment", a.cfg.Environment, "dataDir", a.cfg.DataDir)
	return nil
}

// Shutdown stops background work, flushes pending time and closes resources.
// A running timer is left persisted and resumes on the next start.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Debug("Starting application shutdown sequence")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.stopFlushLoop()
	a.engine.Sync()

	var errs []error
	if err := a.Flush(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}
	if err := a.engine.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("wait for snapshot writes: %w", err))
	}
	if err := a.closeDatabaseConnection(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	releaseLock(a.lock, a.logger)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		a.logger.Warn("Shutdown completed with errors", "error", err)
		return err
	}
	a.logger.Debug("Application shutdown completed")
	return nil
}

func (a *App) startFlushLoop(interval time.Duration) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()
	if interval <= 0 || a.flushStop != nil {
		return
	}
	a.flushStop = make(chan struct{})
	a.flushDone = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := a.Flush(ctx); err != nil {
					a.logger.Warn("Periodic flush failed", "error", err)
				}
				cancel()
			}
		}
	}(a.flushStop, a.flushDone)
}

func (a *App) stopFlushLoop() {
	a.flushMu.Lock()
	stop, done := a.flushStop, a.flushDone
	a.flushStop, a.flushDone = nil, nil
	a.flushMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// closeDatabaseConnection closes the database, giving up when ctx expires
func (a *App) closeDatabaseConnection(ctx context.Context) error {
	if a.dbService == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- a.dbService.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return apperrors.NewStoreErrorWithContext("shutdown", err, apperrors.ClassifyError(err), map[string]string{
				"operation": "close_connection",
			})
		}
		return nil
	case <-ctx.Done():
		a.logger.Warn("Database close timed out")
		return apperrors.NewStoreError("shutdown", ctx.Err(), apperrors.ErrCodeTimeout)
	}
}

// StartTimer starts timing taskID, stopping any running timer first
func (a *App) StartTimer(ctx context.Context, taskID int64) error {
	if _, ok := a.tasks.Get(taskID); !ok {
		// the cache may lag the store; the engine itself tolerates unknown ids
		if _, err := a.events.GetEvent(ctx, taskID); err != nil {
			return err
		}
	}
	return a.engine.Start(ctx, taskID)
}

// StopTimer stops the running timer, if any
func (a *App) StopTimer(ctx context.Context, splitAcrossDays bool) error {
	return a.engine.Stop(ctx, timer.StopOptions{SplitAcrossDays: splitAcrossDays})
}

// SyncTimer pushes the live total of the running timer
func (a *App) SyncTimer() { a.engine.Sync() }

// ResumeTimer resyncs after the host was suspended
func (a *App) ResumeTimer() { a.engine.Resume() }

// Status reports the engine state
func (a *App) Status() types.TimerStatus {
	status := types.TimerStatus{
		TaskID:       types.NoTask,
		CurrentTask:  a.engine.CurrentTask(),
		Ticks:        a.engine.Ticks(),
		PendingTasks: a.dirty.Len(),
	}
	if rt := a.engine.Running(); rt != nil {
		status.Running = true
		status.TaskID = rt.TaskID
		status.StartedAt = rt.StartedAt
		status.BaseSeconds = rt.BaseSeconds
		status.TotalSeconds = rt.TotalAt(a.clock.Now())
		status.SegmentID = rt.SegmentID
	}
	return status
}

// DirtySnapshot returns all unflushed task time
func (a *App) DirtySnapshot() map[int64]types.DirtyTaskRecord { return a.dirty.Snapshot() }

// DirtyEntry returns one task's unflushed time
func (a *App) DirtyEntry(taskID int64) (types.DirtyTaskRecord, bool) { return a.dirty.Entry(taskID) }

// ClearDirty discards one task's unflushed time
func (a *App) ClearDirty(taskID int64) { a.dirty.Clear(taskID) }

// Flush writes unflushed task time to the event store
func (a *App) Flush(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.dirty.FlushToStore(ctx, a.events)
}

// TasksForDate lists the tasks occurring on date with live time applied
func (a *App) TasksForDate(ctx context.Context, date time.Time) ([]types.Occurrence, error) {
	return a.tasks.ForDate(ctx, date)
}

// Tasks returns every task
func (a *App) Tasks() []types.Task { return a.tasks.All() }

// CreateTask stores a new task
func (a *App) CreateTask(ctx context.Context, event types.NewEvent) (types.Task, error) {
	return a.tasks.Create(ctx, event)
}

// UpdateTask applies a partial update. Time spent cannot be edited while the
// task is being timed; an accepted edit replaces any buffered total.
func (a *App) UpdateTask(ctx context.Context, update types.EventUpdate) (types.Task, error) {
	if update.TimeSpent == nil {
		return a.tasks.Update(ctx, update)
	}
	if rt := a.engine.Running(); rt != nil && rt.TaskID == update.ID {
		return types.Task{}, apperrors.HandleValidationError("UpdateTask", "timeSpent",
			fmt.Sprint(*update.TimeSpent), "task is being timed")
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	task, err := a.tasks.Update(ctx, update)
	if err != nil {
		return types.Task{}, err
	}
	a.dirty.ResetTotal(update.ID)
	return task, nil
}

// DeleteTask stops the task's timer if it is running and deletes the task
func (a *App) DeleteTask(ctx context.Context, taskID int64) error {
	if rt := a.engine.Running(); rt != nil && rt.TaskID == taskID {
		if err := a.engine.Stop(ctx, timer.StopOptions{}); err != nil {
			a.logger.Warn("Stopping timer of deleted task failed", "taskId", taskID, "error", err)
		}
	}
	return a.tasks.Delete(ctx, taskID)
}

// Summary aggregates task progress over the days from..to. Pending time is
// flushed first so totals are current.
func (a *App) Summary(ctx context.Context, from, to time.Time) ([]types.TaskSummary, error) {
	a.engine.Sync()
	if err := a.Flush(ctx); err != nil {
		a.logger.Warn("Flush before summary failed", "error", err)
	}
	return a.events.Summary(ctx, from, to)
}

// Logger returns the application's structured logger
func (a *App) Logger() logging.Logger { return a.logger }

// Config returns the loaded configuration
func (a *App) Config() *config.Config { return a.cfg }
