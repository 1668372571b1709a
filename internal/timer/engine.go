// Package timer tracks the single running task timer, attributes its time to
// calendar days and commits it to the event store.
package timer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/types"
)

// SegmentCommitter durably records a finished timed segment
type SegmentCommitter interface {
	CommitSegment(ctx context.Context, id int64, total int64, deltas map[string]int64) error
}

// TaskTimes is the in-memory view of task totals the engine reads and updates
type TaskTimes interface {
	TimeSpent(id int64) (int64, bool)
	SetTimeSpent(id int64, seconds int64)
}

// Config controls engine timing
type Config struct {
	// TickInterval paces the heartbeat; zero disables the scheduler
	TickInterval time.Duration
	// WriteTimeout bounds each durable commit
	WriteTimeout time.Duration
}

// DefaultConfig returns a one second heartbeat and a five second write timeout
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// StopOptions controls how a stopped segment is attributed
type StopOptions struct {
	// SplitAcrossDays divides a segment that crossed midnight between the
	// start day and today instead of giving it all to the start day
	SplitAcrossDays bool
}

// Engine owns the running timer. Start and Stop are serialized; heartbeats
// and syncs may run concurrently with them.
type Engine struct {
	cfg    Config
	clock  Clock
	store  SegmentCommitter
	tasks  TaskTimes
	active *ActiveStore
	dirty  *DirtyBuffer
	logger logging.Logger

	opMu sync.Mutex // serializes Init, Start and Stop

	mu       sync.Mutex // guards running and lastBeat
	running  *types.RunningTimer
	lastBeat time.Time

	currentTask *Observable[int64]
	ticks       *Observable[uint64]
	tickCount   atomic.Uint64

	initMu sync.Mutex
	initCh chan struct{}

	schedStop chan struct{}
	schedDone chan struct{}

	newSegmentID func() string
}

// NewEngine wires an engine to its stores. Call Init before use.
func NewEngine(cfg Config, clock Clock, store SegmentCommitter, tasks TaskTimes, active *ActiveStore, dirty *DirtyBuffer, logger logging.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Engine{
		cfg:          cfg,
		clock:        clock,
		store:        store,
		tasks:        tasks,
		active:       active,
		dirty:        dirty,
		logger:       logger,
		currentTask:  NewObservable(types.NoTask),
		ticks:        NewObservable[uint64](0),
		newSegmentID: uuid.NewString,
	}
}

// Init hydrates both stores, adopts a persisted running timer and starts the
// heartbeat. Only the first call does work; concurrent callers wait for it.
func (e *Engine) Init(ctx context.Context) error {
	e.initMu.Lock()
	if ch := e.initCh; ch != nil {
		e.initMu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	e.initCh = ch
	e.initMu.Unlock()
	defer close(ch)

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.dirty.EnsureHydrated(ctx)
	e.active.Hydrate(ctx)

	if rt := e.active.Get(); rt != nil {
		e.mu.Lock()
		e.running = rt
		e.mu.Unlock()
		e.currentTask.Set(rt.TaskID)
		e.pushUpdate()
		e.logger.Info("Resumed running timer",
			"taskId", rt.TaskID,
			"segmentId", rt.SegmentID,
			"elapsed", rt.ElapsedAt(e.clock.Now()))
	}

	e.startScheduler()
	return nil
}

// Start finalizes any running timer without splitting it and starts timing taskID
func (e *Engine) Start(ctx context.Context, taskID int64) error {
	if taskID <= 0 {
		return apperrors.HandleValidationError("Start", "taskId", strconv.FormatInt(taskID, 10), "must be positive")
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.isRunning() {
		if err := e.finalizeRunning(ctx, false, true); err != nil {
			e.currentTask.Set(types.NoTask)
			return fmt.Errorf("start task %d: %w", taskID, err)
		}
	}

	base, _ := e.tasks.TimeSpent(taskID)
	if pending, ok := e.dirty.Effective(taskID); ok {
		base = max(base, pending)
	}

	rt := &types.RunningTimer{
		TaskID:      taskID,
		StartedAt:   e.clock.Now().UnixMilli(),
		BaseSeconds: base,
		SegmentID:   e.newSegmentID(),
	}

	e.mu.Lock()
	e.running = rt
	e.mu.Unlock()

	e.active.Set(rt)
	e.currentTask.Set(taskID)
	e.pushUpdate()

	e.logger.Info("Timer started", "taskId", taskID, "baseSeconds", base, "segmentId", rt.SegmentID)
	return nil
}

// Stop finalizes the running timer. It is a no-op when nothing is running.
func (e *Engine) Stop(ctx context.Context, opts StopOptions) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.finalizeRunning(ctx, opts.SplitAcrossDays, false)
}

// Sync pushes the live total of the running timer into memory and the buffer
func (e *Engine) Sync() {
	e.pushUpdate()
}

// Resume brings state up to date after the process was suspended
func (e *Engine) Resume() {
	now := e.clock.Now()
	e.mu.Lock()
	e.lastBeat = now
	running := e.running != nil
	e.mu.Unlock()

	if running {
		e.logger.Info("Resyncing running timer after resume")
	}
	e.pushUpdate()
}

// Heartbeat advances the tick counter and pushes the live total. A gap of
// more than two intervals since the previous beat is logged as a suspension.
func (e *Engine) Heartbeat() {
	now := e.clock.Now()
	e.mu.Lock()
	last := e.lastBeat
	e.lastBeat = now
	e.mu.Unlock()

	if interval := e.cfg.TickInterval; interval > 0 && !last.IsZero() {
		if gap := now.Sub(last); gap > 2*interval {
			e.logger.Info("Heartbeat gap detected, process was likely suspended", "gap", gap.String())
		}
	}

	e.ticks.Set(e.tickCount.Add(1))
	e.pushUpdate()
}

// Running returns a copy of the running timer, or nil
func (e *Engine) Running() *types.RunningTimer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running == nil {
		return nil
	}
	rt := *e.running
	return &rt
}

// LiveTotal returns the running task and its total right now
func (e *Engine) LiveTotal() (taskID, total int64, ok bool) {
	e.mu.Lock()
	rt := e.running
	e.mu.Unlock()
	if rt == nil {
		return types.NoTask, 0, false
	}
	return rt.TaskID, rt.TotalAt(e.clock.Now()), true
}

// CurrentTask returns the selected task, or types.NoTask
func (e *Engine) CurrentTask() int64 {
	return e.currentTask.Get()
}

// Ticks returns the heartbeat counter
func (e *Engine) Ticks() uint64 {
	return e.ticks.Get()
}

// SubscribeCurrentTask is notified whenever the selected task changes
func (e *Engine) SubscribeCurrentTask(fn func(int64)) (cancel func()) {
	return e.currentTask.Subscribe(fn)
}

// SubscribeTicks is notified on every heartbeat
func (e *Engine) SubscribeTicks(fn func(uint64)) (cancel func()) {
	return e.ticks.Subscribe(fn)
}

// SubscribeRunning is notified whenever the running timer changes
func (e *Engine) SubscribeRunning(fn func(*types.RunningTimer)) (cancel func()) {
	return e.active.Subscribe(fn)
}

// Close stops the heartbeat and waits for pending snapshot writes. A running
// timer stays persisted and is resumed by the next Init.
func (e *Engine) Close(ctx context.Context) error {
	e.stopScheduler()
	if err := e.active.Wait(ctx); err != nil {
		return err
	}
	return e.dirty.Wait(ctx)
}

func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running != nil
}

// pushUpdate writes the running segment's live total to the task and its
// cumulative day buckets to the dirty buffer. It is idempotent for a given
// instant and does nothing when no timer is running.
func (e *Engine) pushUpdate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	rt := e.running
	if rt == nil {
		return
	}
	now := e.clock.Now()
	split := ComputeDaySplit(*rt, now)

	e.dirty.MarkSegment(rt.TaskID, rt.BaseSeconds, split.Buckets())
	e.tasks.SetTimeSpent(rt.TaskID, rt.TotalAt(now))
}

// finalizeRunning ends the running segment and commits it. In-memory state
// transitions before the durable write, so a failed write leaves the timer
// stopped with its total and day seconds held in the dirty buffer.
func (e *Engine) finalizeRunning(ctx context.Context, splitAcrossDays, keepCurrent bool) error {
	e.mu.Lock()
	rt := e.running
	if rt == nil {
		e.mu.Unlock()
		return nil
	}

	now := e.clock.Now()
	split := ComputeDaySplit(*rt, now)
	total := rt.TotalAt(now)

	buckets := map[string]int64{split.StartKey: total}
	deltas := map[string]int64{split.StartKey: rt.ElapsedAt(now)}
	if splitAcrossDays && split.Crossed() {
		buckets = split.Buckets()
		deltas = map[string]int64{
			split.StartKey: split.StartDaySeconds - rt.BaseSeconds,
			split.TodayKey: split.TodaySeconds,
		}
	}

	e.dirty.MarkSegment(rt.TaskID, rt.BaseSeconds, buckets)
	e.tasks.SetTimeSpent(rt.TaskID, total)
	e.running = nil
	e.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	err := e.store.CommitSegment(writeCtx, rt.TaskID, total, deltas)

	e.active.Clear()
	if !keepCurrent {
		e.currentTask.Set(types.NoTask)
	}

	if err != nil {
		e.dirty.AddPendingDays(rt.TaskID, deltas)
		logging.LogError(e.logger, err, "finalizeRunning", map[string]interface{}{
			"taskId": rt.TaskID,
			"total":  total,
		})
		return fmt.Errorf("commit timer for task %d: %w", rt.TaskID, err)
	}

	e.logger.Info("Timer stopped",
		"taskId", rt.TaskID,
		"total", total,
		"elapsed", rt.ElapsedAt(now),
		"split", splitAcrossDays && split.Crossed())
	return nil
}
