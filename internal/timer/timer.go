// Package timer implements a recurring timer with a replaceable callback.
package timer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Callback is invoked with the firing timestamp on every tick.
type Callback func(tick time.Time)

// Timer fires a callback at a fixed period on a dedicated goroutine.
// Ticks never overlap: one callback completes before the next begins.
// The callback can be swapped at runtime; a tick already in progress
// keeps the callback it started with.
type Timer struct {
	name     string
	interval time.Duration
	callback atomic.Pointer[Callback]
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a timer. The callback may be replaced later via SetCallback.
func New(name string, interval time.Duration, callback Callback, logger *slog.Logger) *Timer {
	t := &Timer{
		name:     name,
		interval: interval,
		logger:   logger,
	}
	t.callback.Store(&callback)
	return t
}

// SetCallback atomically installs the callback used by the next tick.
func (t *Timer) SetCallback(callback Callback) {
	t.callback.Store(&callback)
}

// Callback returns the currently installed callback.
func (t *Timer) Callback() Callback {
	return *t.callback.Load()
}

// Start begins firing the callback every interval. Starting an already
// started timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}
	t.started = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	go t.loop(t.stopCh, t.doneCh)

	t.logger.Info("recurring timer started",
		"timer", t.name,
		"interval_ms", t.interval.Milliseconds(),
	)
}

// Stop halts future firings. With interrupt=false the call blocks until
// any in-flight callback has completed; with interrupt=true it returns
// immediately (the in-flight callback, if any, still runs to completion
// on its own goroutine).
func (t *Timer) Stop(interrupt bool) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.stopCh)
	done := t.doneCh
	t.mu.Unlock()

	if !interrupt {
		<-done
	}

	t.logger.Info("recurring timer stopped",
		"timer", t.name,
		"interrupted", interrupt,
	)
}

func (t *Timer) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case tick := <-ticker.C:
			cb := *t.callback.Load()
			cb(tick)
		}
	}
}
