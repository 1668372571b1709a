package timer

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"focustrack/internal/testutils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memKV is an in-memory kvstore.Store with failure injection
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	sets    int
	deletes int
	gate    chan struct{} // when set, Get blocks until closed
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func (m *memKV) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memKV) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets + m.deletes
}

type fakeTasks struct {
	mu    sync.Mutex
	times map[int64]int64
}

func newFakeTasks(times map[int64]int64) *fakeTasks {
	if times == nil {
		times = map[int64]int64{}
	}
	return &fakeTasks{times: times}
}

func (f *fakeTasks) TimeSpent(id int64) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.times[id]
	return v, ok
}

func (f *fakeTasks) SetTimeSpent(id int64, seconds int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times[id] = seconds
}

type commit struct {
	ID     int64
	Total  int64
	Deltas map[string]int64
}

type fakeCommitter struct {
	mu      sync.Mutex
	commits []commit
	err     error
	// when set, CommitSegment signals entered and blocks until release is closed
	entered chan struct{}
	release chan struct{}
}

func (f *fakeCommitter) CommitSegment(_ context.Context, id int64, total int64, deltas map[string]int64) error {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commits = append(f.commits, commit{ID: id, Total: total, Deltas: maps.Clone(deltas)})
	return nil
}

func (f *fakeCommitter) all() []commit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]commit(nil), f.commits...)
}

// fakeSink is a FlushSink that raises totals and accumulates day seconds
type fakeSink struct {
	mu      sync.Mutex
	totals  map[int64]int64
	days    map[int64]map[string]int64
	failIDs map[int64]error
	calls   int
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		totals:  map[int64]int64{},
		days:    map[int64]map[string]int64{},
		failIDs: map[int64]error{},
	}
}

func (f *fakeSink) ApplyBufferedTime(_ context.Context, id int64, total int64, deltas map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.failIDs[id]; err != nil {
		return err
	}
	f.totals[id] = max(f.totals[id], total)
	for day, seconds := range deltas {
		if f.days[id] == nil {
			f.days[id] = map[string]int64{}
		}
		f.days[id][day] += seconds
	}
	return nil
}

var errBoom = errors.New("boom")

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.Local)
}

type engineHarness struct {
	logger *testutils.RecordingLogger
	clock  *fakeClock
	kv     *memKV
	tasks  *fakeTasks
	store  *fakeCommitter
	active *ActiveStore
	dirty  *DirtyBuffer
	engine *Engine
}

func newHarness(t *testing.T, now time.Time, times map[int64]int64) *engineHarness {
	t.Helper()
	h := &engineHarness{
		logger: &testutils.RecordingLogger{},
		clock:  newFakeClock(now),
		kv:     newMemKV(),
		tasks:  newFakeTasks(times),
		store:  &fakeCommitter{},
	}
	h.rebuild()
	return h
}

// rebuild simulates a process restart over the same durable state
func (h *engineHarness) rebuild() {
	h.active = NewActiveStore(h.kv, time.Second, h.logger)
	h.dirty = NewDirtyBuffer(h.kv, h.clock, time.Second, h.logger)
	h.engine = NewEngine(Config{WriteTimeout: time.Second}, h.clock, h.store, h.tasks, h.active, h.dirty, h.logger)
}

func (h *engineHarness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.engine.Close(ctx); err != nil {
		t.Fatalf("waiting for writes: %v", err)
	}
}
