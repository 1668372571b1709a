package timer

import "time"

func (e *Engine) startScheduler() {
	if e.cfg.TickInterval <= 0 || e.schedStop != nil {
		return
	}
	e.schedStop = make(chan struct{})
	e.schedDone = make(chan struct{})
	go e.runScheduler(e.cfg.TickInterval, e.schedStop, e.schedDone)
}

func (e *Engine) stopScheduler() {
	e.opMu.Lock()
	stop, done := e.schedStop, e.schedDone
	e.schedStop, e.schedDone = nil, nil
	e.opMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (e *Engine) runScheduler(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Heartbeat()
		}
	}
}
