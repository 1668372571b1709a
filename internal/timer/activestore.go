package timer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/kvstore"
	"focustrack/internal/types"
)

// ActiveStore holds the running-timer snapshot and persists it under
// kvstore.KeyActiveTimer so a timer survives a restart.
//
// Writes made before Hydrate completes change memory only; once hydration
// finishes the in-memory value, if it was touched, is written out.
type ActiveStore struct {
	value     *Observable[*types.RunningTimer]
	writer    *snapshotWriter
	hydration hydration
	logger    logging.Logger

	mu      sync.Mutex
	ready   bool // durable writes allowed
	touched bool // Set or Clear called since construction
}

// NewActiveStore creates an empty, unhydrated store
func NewActiveStore(kv kvstore.Store, writeTimeout time.Duration, logger logging.Logger) *ActiveStore {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &ActiveStore{
		value:  NewObservable[*types.RunningTimer](nil),
		writer: newSnapshotWriter(kv, kvstore.KeyActiveTimer, writeTimeout, logger),
		logger: logger,
	}
}

// Hydrate loads the persisted snapshot once. Read or decode failures are
// logged and leave the store empty.
func (s *ActiveStore) Hydrate(ctx context.Context) {
	s.hydration.run(ctx, s.load)
}

func (s *ActiveStore) load(ctx context.Context) {
	loaded := s.read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	if s.touched {
		s.persistLocked(s.value.Get())
		return
	}
	if loaded != nil {
		s.value.Set(loaded)
		s.logger.Info("Restored running timer", "taskId", loaded.TaskID, "startedAt", loaded.StartedAt)
	}
}

func (s *ActiveStore) read(ctx context.Context) *types.RunningTimer {
	raw, ok, err := s.writer.kv.Get(ctx, kvstore.KeyActiveTimer)
	if err != nil {
		logging.LogError(s.logger, err, "ActiveStore.Hydrate", nil)
		return nil
	}
	if !ok {
		return nil
	}
	var rt types.RunningTimer
	if err := json.Unmarshal([]byte(raw), &rt); err != nil {
		s.logger.Warn("Discarding unreadable running timer snapshot", "error", err)
		return nil
	}
	if rt.TaskID <= 0 || rt.StartedAt <= 0 {
		s.logger.Warn("Discarding invalid running timer snapshot", "taskId", rt.TaskID, "startedAt", rt.StartedAt)
		return nil
	}
	return &rt
}

// Get returns the current snapshot, nil when no timer is running
func (s *ActiveStore) Get() *types.RunningTimer {
	rt := s.value.Get()
	if rt == nil {
		return nil
	}
	clone := *rt
	return &clone
}

// Set replaces the snapshot in memory immediately and persists it in the
// background once hydrated
func (s *ActiveStore) Set(rt *types.RunningTimer) {
	var stored *types.RunningTimer
	if rt != nil {
		clone := *rt
		stored = &clone
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = true
	s.value.Set(stored)
	if !s.ready {
		s.logger.Debug("Running timer change kept in memory until hydrated")
		return
	}
	s.persistLocked(stored)
}

// Clear removes the snapshot. The durable copy is deleted even before
// hydration completes.
func (s *ActiveStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = true
	s.value.Set(nil)
	s.writer.schedule("", true)
}

// Subscribe is notified of every snapshot change
func (s *ActiveStore) Subscribe(fn func(*types.RunningTimer)) (cancel func()) {
	return s.value.Subscribe(fn)
}

// Wait blocks until pending durable writes finish
func (s *ActiveStore) Wait(ctx context.Context) error {
	return s.writer.wait(ctx)
}

func (s *ActiveStore) persistLocked(rt *types.RunningTimer) {
	if rt == nil {
		s.writer.schedule("", true)
		return
	}
	data, err := json.Marshal(rt)
	if err != nil {
		logging.LogError(s.logger, err, "ActiveStore.persist", nil)
		return
	}
	s.writer.schedule(string(data), false)
}
