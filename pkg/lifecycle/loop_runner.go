package lifecycle

import (
	"context"
	"sync"
	"time"
)

// LoopRunner provides a reusable start/stop lifecycle for background loops.
// Start and Stop are idempotent and Stop waits for the loop to return.
type LoopRunner struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	cancel  context.CancelFunc
}

func NewLoopRunner() *LoopRunner {
	return &LoopRunner{}
}

// Start runs loop in a goroutine with a context derived from parent that is
// canceled by Stop.
func (r *LoopRunner) Start(parent context.Context, loop func(ctx context.Context)) bool {
	if loop == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		loop(ctx)
	}()
	return true
}

func (r *LoopRunner) Stop() bool {
	return r.StopTimeout(0)
}

// StopTimeout cancels the loop and waits up to timeout for it to exit.
// A non-positive timeout waits indefinitely. It reports whether the loop
// exited in time.
func (r *LoopRunner) StopTimeout(timeout time.Duration) bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return true
	}
	cancel := r.cancel
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (r *LoopRunner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}
