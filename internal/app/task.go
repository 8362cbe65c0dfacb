package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/logship/internal/ports"
)

// Task supervises one long-lived background goroutine.
//
// The device checks Alive on every write and restarts a task that exited,
// so a task never has to survive a failure on its own.
type Task struct {
	name   string
	logger ports.Logger

	alive atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTask creates a stopped task.
func NewTask(name string, logger ports.Logger) *Task {
	return &Task{name: name, logger: logger}
}

// Start runs fn in a new goroutine under a child of ctx.
// It is a no-op while the previous run is still alive.
func (t *Task) Start(ctx context.Context, fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.alive.Load() {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.alive.Store(true)

	go func() {
		defer close(done)
		defer t.alive.Store(false)
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("background task panicked",
					ports.String("task", t.name),
					ports.Err(fmt.Errorf("panic: %v", r)),
				)
			}
		}()
		fn(runCtx)
	}()
}

// Alive reports whether the goroutine is still running.
func (t *Task) Alive() bool {
	return t.alive.Load()
}

// Stop cancels the task and waits up to timeout for it to return.
// Returns false if the goroutine was still running at the deadline.
func (t *Task) Stop(timeout time.Duration) bool {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		t.logger.Warn("background task did not stop in time",
			ports.String("task", t.name),
			ports.Duration("timeout", timeout),
		)
		return false
	}
}
