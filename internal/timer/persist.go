package timer

import (
	"context"
	"sync"
	"time"

	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/kvstore"
)

// snapshotWriter persists one key in the background. Writes are ordered by
// request: a write that loses the race to a newer one is dropped.
type snapshotWriter struct {
	kv      kvstore.Store
	key     string
	timeout time.Duration
	logger  logging.Logger

	mu      sync.Mutex
	seq     uint64 // last requested, guarded by reqMu
	written uint64 // last written, guarded by mu
	reqMu   sync.Mutex
	wg      sync.WaitGroup
}

func newSnapshotWriter(kv kvstore.Store, key string, timeout time.Duration, logger logging.Logger) *snapshotWriter {
	return &snapshotWriter{kv: kv, key: key, timeout: timeout, logger: logger}
}

// schedule writes value, or deletes the key when remove is set
func (w *snapshotWriter) schedule(value string, remove bool) {
	w.reqMu.Lock()
	w.seq++
	seq := w.seq
	w.reqMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.mu.Lock()
		defer w.mu.Unlock()
		if seq < w.written {
			return
		}
		w.written = seq

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		var err error
		if remove {
			err = w.kv.Delete(ctx, w.key)
		} else {
			err = w.kv.Set(ctx, w.key, value)
		}
		if err != nil {
			logging.LogError(w.logger, err, "persist snapshot", map[string]interface{}{
				"key":    w.key,
				"remove": remove,
			})
		}
	}()
}

// wait blocks until every scheduled write has finished or ctx is done
func (w *snapshotWriter) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hydration runs a load at most once to completion. Concurrent callers share
// the in-flight load.
type hydration struct {
	mu       sync.Mutex
	done     bool
	inflight chan struct{}
}

func (h *hydration) run(ctx context.Context, load func(ctx context.Context)) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	if ch := h.inflight; ch != nil {
		h.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		return
	}
	ch := make(chan struct{})
	h.inflight = ch
	h.mu.Unlock()

	load(ctx)

	h.mu.Lock()
	h.done = true
	h.inflight = nil
	h.mu.Unlock()
	close(ch)
}
