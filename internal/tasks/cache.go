// Package tasks keeps the in-memory task entities the UI and timer read,
// backed by the event store.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/types"
)

// Store is the part of the event store the cache uses
type Store interface {
	CreateEvent(ctx context.Context, event types.NewEvent) (int64, error)
	UpdateEvent(ctx context.Context, update types.EventUpdate) error
	DeleteEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*types.Task, error)
	GetAllEvents(ctx context.Context) ([]types.Task, error)
	GetEventsForDate(ctx context.Context, date time.Time) ([]types.Occurrence, error)
}

// Pending exposes unflushed task time
type Pending interface {
	Effective(taskID int64) (int64, bool)
	Clear(taskIDs ...int64)
}

// Cache holds task entities keyed by id. Live time updates from the timer
// change memory only and are announced to subscribers.
type Cache struct {
	store   Store
	pending Pending
	logger  logging.Logger

	mu     sync.RWMutex
	tasks  map[int64]types.Task
	subs   map[uint64]func(types.Task)
	nextID uint64
}

// NewCache creates an empty cache; call Load to fill it
func NewCache(store Store, pending Pending, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Cache{
		store:   store,
		pending: pending,
		logger:  logger,
		tasks:   make(map[int64]types.Task),
		subs:    make(map[uint64]func(types.Task)),
	}
}

// Load replaces the cache contents with every stored task. Unflushed time
// that is ahead of the stored total is applied on top.
func (c *Cache) Load(ctx context.Context) error {
	start := time.Now()
	all, err := c.store.GetAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	loaded := make(map[int64]types.Task, len(all))
	for _, task := range all {
		if pending, ok := c.pending.Effective(task.ID); ok && pending > task.TimeSpent {
			task.TimeSpent = pending
		}
		loaded[task.ID] = task
	}

	c.mu.Lock()
	c.tasks = loaded
	c.mu.Unlock()

	logging.LogOperation(c.logger, "tasks.Load", time.Since(start), map[string]interface{}{"tasks": len(loaded)})
	return nil
}

// Get returns a task by id
func (c *Cache) Get(id int64) (types.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	task, ok := c.tasks[id]
	return task, ok
}

// All returns every cached task ordered by id
func (c *Cache) All() []types.Task {
	c.mu.RLock()
	all := make([]types.Task, 0, len(c.tasks))
	for _, task := range c.tasks {
		all = append(all, task)
	}
	c.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// TimeSpent returns a task's in-memory total
func (c *Cache) TimeSpent(id int64) (int64, bool) {
	task, ok := c.Get(id)
	return task.TimeSpent, ok
}

// SetTimeSpent updates a task's in-memory total and notifies subscribers.
// Unknown ids are ignored. Subscribers run on the caller's goroutine and must
// not start or stop timers.
func (c *Cache) SetTimeSpent(id int64, seconds int64) {
	c.mu.Lock()
	task, ok := c.tasks[id]
	if !ok || task.TimeSpent == seconds {
		c.mu.Unlock()
		return
	}
	task.TimeSpent = seconds
	c.tasks[id] = task
	fns := c.subscribersLocked()
	c.mu.Unlock()

	for _, fn := range fns {
		fn(task)
	}
}

// Subscribe is called with the updated task on every time change
func (c *Cache) Subscribe(fn func(types.Task)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cache) subscribersLocked() []func(types.Task) {
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(types.Task), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	return fns
}

// Create stores a new task and caches it
func (c *Cache) Create(ctx context.Context, event types.NewEvent) (types.Task, error) {
	id, err := c.store.CreateEvent(ctx, event)
	if err != nil {
		return types.Task{}, err
	}
	task, err := c.store.GetEvent(ctx, id)
	if err != nil {
		return types.Task{}, fmt.Errorf("reload created task %d: %w", id, err)
	}

	c.mu.Lock()
	c.tasks[id] = *task
	c.mu.Unlock()

	c.logger.Info("Task created", "taskId", id, "title", task.Title)
	return *task, nil
}

// Update applies a partial update to the store and the cached entity
func (c *Cache) Update(ctx context.Context, update types.EventUpdate) (types.Task, error) {
	if err := c.store.UpdateEvent(ctx, update); err != nil {
		return types.Task{}, err
	}
	task, err := c.store.GetEvent(ctx, update.ID)
	if err != nil {
		return types.Task{}, fmt.Errorf("reload updated task %d: %w", update.ID, err)
	}

	c.mu.Lock()
	if cached, ok := c.tasks[update.ID]; ok && update.TimeSpent == nil && cached.TimeSpent > task.TimeSpent {
		// keep live time the store has not caught up with
		task.TimeSpent = cached.TimeSpent
	}
	c.tasks[update.ID] = *task
	c.mu.Unlock()
	return *task, nil
}

// Delete removes a task from the store, the cache and the unflushed buffer
func (c *Cache) Delete(ctx context.Context, id int64) error {
	err := c.store.DeleteEvent(ctx, id)
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}

	c.mu.Lock()
	delete(c.tasks, id)
	c.mu.Unlock()
	c.pending.Clear(id)

	c.logger.Info("Task deleted", "taskId", id)
	return err
}

// ForDate returns the occurrences on date with live and unflushed time applied
func (c *Cache) ForDate(ctx context.Context, date time.Time) ([]types.Occurrence, error) {
	occurrences, err := c.store.GetEventsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	for i := range occurrences {
		occ := &occurrences[i]
		spent := occ.TimeSpent
		if live, ok := c.TimeSpent(occ.ID); ok {
			spent = max(spent, live)
		}
		if pending, ok := c.pending.Effective(occ.ID); ok {
			spent = max(spent, pending)
		}
		occ.TimeSpent = spent
		occ.PercentComplete = types.PercentComplete(spent, occ.TimeGoal)
	}
	return occurrences, nil
}
