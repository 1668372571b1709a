package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/kvstore"
	"focustrack/internal/types"
)

// FlushSink is the part of the event store a flush writes to. The total must
// only raise the durable value; the day deltas are added.
type FlushSink interface {
	ApplyBufferedTime(ctx context.Context, id int64, total int64, deltas map[string]int64) error
}

// DirtyBuffer records task time not yet written to the event store and
// persists the whole map under kvstore.KeyDirtyTasks on every change.
type DirtyBuffer struct {
	writer    *snapshotWriter
	hydration hydration
	clock     Clock
	logger    logging.Logger

	mu      sync.Mutex
	records map[int64]types.DirtyTaskRecord
	ready   bool
	touched bool
}

// NewDirtyBuffer creates an empty, unhydrated buffer
func NewDirtyBuffer(kv kvstore.Store, clock Clock, writeTimeout time.Duration, logger logging.Logger) *DirtyBuffer {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &DirtyBuffer{
		writer:  newSnapshotWriter(kv, kvstore.KeyDirtyTasks, writeTimeout, logger),
		clock:   clock,
		logger:  logger,
		records: make(map[int64]types.DirtyTaskRecord),
	}
}

// EnsureHydrated loads the persisted buffer once. Records already present in
// memory take precedence over loaded ones.
func (b *DirtyBuffer) EnsureHydrated(ctx context.Context) {
	b.hydration.run(ctx, b.load)
}

func (b *DirtyBuffer) load(ctx context.Context) {
	loaded := b.read(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, rec := range loaded {
		if _, exists := b.records[id]; !exists {
			b.records[id] = rec
		}
	}
	b.ready = true
	if b.touched {
		b.persistLocked()
	}
	if len(loaded) > 0 {
		b.logger.Info("Restored unflushed task time", "tasks", len(loaded))
	}
}

func (b *DirtyBuffer) read(ctx context.Context) map[int64]types.DirtyTaskRecord {
	raw, ok, err := b.writer.kv.Get(ctx, kvstore.KeyDirtyTasks)
	if err != nil {
		logging.LogError(b.logger, err, "DirtyBuffer.Hydrate", nil)
		return nil
	}
	if !ok {
		return nil
	}
	var loaded map[int64]types.DirtyTaskRecord
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		b.logger.Warn("Discarding unreadable dirty task snapshot", "error", err)
		return nil
	}
	return loaded
}

// MarkDirty records seconds for a task. With a dateKey it sets that day's
// bucket and keeps the fallback total; without one it sets the fallback
// total and keeps the buckets.
func (b *DirtyBuffer) MarkDirty(taskID, seconds int64, dateKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.records[taskID].Clone()
	if dateKey != "" {
		if rec.ByDate == nil {
			rec.ByDate = make(map[string]int64)
		}
		rec.ByDate[dateKey] = seconds
	} else {
		rec.TimeSpent = &seconds
	}
	b.storeLocked(taskID, rec)
}

// MarkSegment replaces a task's record with the cumulative day buckets of
// its current timed segment. baseSeconds, the total before the segment, is
// kept as the fallback so the effective total never drops below it.
func (b *DirtyBuffer) MarkSegment(taskID, baseSeconds int64, buckets map[string]int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := types.DirtyTaskRecord{
		TimeSpent: &baseSeconds,
		ByDate:    maps.Clone(buckets),
	}
	if prev, ok := b.records[taskID]; ok {
		if prev.TimeSpent != nil && *prev.TimeSpent > baseSeconds {
			rec.TimeSpent = types.Int64Ptr(*prev.TimeSpent)
		}
		rec.PendingDays = maps.Clone(prev.PendingDays)
	}
	b.storeLocked(taskID, rec)
}

// AddPendingDays queues per-day seconds for the next flush. Non-positive
// values are ignored.
func (b *DirtyBuffer) AddPendingDays(taskID int64, deltas map[string]int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.records[taskID].Clone()
	added := false
	for day, seconds := range deltas {
		if seconds <= 0 {
			continue
		}
		if rec.PendingDays == nil {
			rec.PendingDays = make(map[string]int64)
		}
		rec.PendingDays[day] += seconds
		added = true
	}
	if added {
		b.storeLocked(taskID, rec)
	}
}

// ResetTotal forgets a task's buffered total after it was set explicitly.
// Queued day seconds are kept.
func (b *DirtyBuffer) ResetTotal(taskID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[taskID]
	if !ok {
		return
	}
	if len(rec.PendingDays) == 0 {
		delete(b.records, taskID)
		b.touched = true
		if b.ready {
			b.persistLocked()
		}
		return
	}
	b.storeLocked(taskID, types.DirtyTaskRecord{PendingDays: maps.Clone(rec.PendingDays)})
}

func (b *DirtyBuffer) storeLocked(taskID int64, rec types.DirtyTaskRecord) {
	rec.UpdatedAt = b.clock.Now().UnixMilli()
	b.records[taskID] = rec
	b.touched = true
	if b.ready {
		b.persistLocked()
	}
}

// Entry returns a copy of one task's record
func (b *DirtyBuffer) Entry(taskID int64) (types.DirtyTaskRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[taskID]
	if !ok {
		return types.DirtyTaskRecord{}, false
	}
	return rec.Clone(), true
}

// Effective returns the total a flush would write for the task
func (b *DirtyBuffer) Effective(taskID int64) (int64, bool) {
	rec, ok := b.Entry(taskID)
	if !ok {
		return 0, false
	}
	return rec.Effective(), true
}

// Snapshot returns a deep copy of the whole buffer
func (b *DirtyBuffer) Snapshot() map[int64]types.DirtyTaskRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := make(map[int64]types.DirtyTaskRecord, len(b.records))
	for id, rec := range b.records {
		snap[id] = rec.Clone()
	}
	return snap
}

// Len returns the number of buffered tasks
func (b *DirtyBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Clear removes the given tasks, or every task when none are given
func (b *DirtyBuffer) Clear(taskIDs ...int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(taskIDs) == 0 {
		clear(b.records)
	}
	for _, id := range taskIDs {
		delete(b.records, id)
	}
	b.touched = true
	if b.ready {
		b.persistLocked()
	}
}

// FlushToStore writes each buffered task's effective total and queued day
// seconds to the event store. Tasks that were written, or no longer exist, are
// removed unless they changed during the flush; queued day seconds that were
// written are always removed. Failed tasks stay buffered and their errors are joined.
func (b *DirtyBuffer) FlushToStore(ctx context.Context, store FlushSink) error {
	b.EnsureHydrated(ctx)

	snap := b.Snapshot()
	if len(snap) == 0 {
		return nil
	}
	start := time.Now()

	ids := slices.Sorted(maps.Keys(snap))
	done := make([]int64, 0, len(ids))
	var errs []error
	for _, id := range ids {
		effective := snap[id].Effective()
		err := store.ApplyBufferedTime(ctx, id, effective, snap[id].PendingDays)
		switch {
		case err == nil:
			done = append(done, id)
		case apperrors.IsNotFound(err):
			b.logger.Warn("Dropping buffered time for missing task", "taskId", id, "seconds", effective)
			done = append(done, id)
		default:
			errs = append(errs, fmt.Errorf("flush task %d: %w", id, err))
		}
	}

	b.mu.Lock()
	removed, changed := 0, false
	for _, id := range done {
		cur, ok := b.records[id]
		if !ok {
			continue
		}
		if sameRecord(cur, snap[id]) {
			delete(b.records, id)
			removed++
			changed = true
			continue
		}
		if len(snap[id].PendingDays) > 0 {
			b.records[id] = withoutDays(cur, snap[id].PendingDays)
			changed = true
		}
	}
	if changed {
		b.touched = true
		if b.ready {
			b.persistLocked()
		}
	}
	remaining := len(b.records)
	b.mu.Unlock()

	logging.LogOperation(b.logger, "DirtyBuffer.FlushToStore", time.Since(start), map[string]interface{}{
		"flushed":   removed,
		"failed":    len(errs),
		"remaining": remaining,
	})
	if len(errs) > 0 {
		b.logger.Warn("Some buffered task time could not be flushed", "failed", len(errs))
	}
	return errors.Join(errs...)
}

// Wait blocks until pending durable writes finish
func (b *DirtyBuffer) Wait(ctx context.Context) error {
	return b.writer.wait(ctx)
}

func (b *DirtyBuffer) persistLocked() {
	if len(b.records) == 0 {
		b.writer.schedule("", true)
		return
	}
	data, err := json.Marshal(b.records)
	if err != nil {
		logging.LogError(b.logger, err, "DirtyBuffer.persist", nil)
		return
	}
	b.writer.schedule(string(data), false)
}

// withoutDays returns rec with the written day seconds subtracted
func withoutDays(rec types.DirtyTaskRecord, written map[string]int64) types.DirtyTaskRecord {
	rec = rec.Clone()
	for day, seconds := range written {
		if left := rec.PendingDays[day] - seconds; left > 0 {
			rec.PendingDays[day] = left
		} else {
			delete(rec.PendingDays, day)
		}
	}
	if len(rec.PendingDays) == 0 {
		rec.PendingDays = nil
	}
	return rec
}

func sameRecord(a, b types.DirtyTaskRecord) bool {
	if a.UpdatedAt != b.UpdatedAt || !maps.Equal(a.ByDate, b.ByDate) || !maps.Equal(a.PendingDays, b.PendingDays) {
		return false
	}
	if (a.TimeSpent == nil) != (b.TimeSpent == nil) {
		return false
	}
	return a.TimeSpent == nil || *a.TimeSpent == *b.TimeSpent
}
