package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"kpibot/pkg/logger"
)

var (
	// ErrRefreshBusy is reported when a caller gave up waiting for an
	// in-flight refresh to release the lock.
	ErrRefreshBusy = errors.New("refresh already in progress")
	// ErrRefreshRejected is reported when the data manager returned false.
	ErrRefreshRejected = errors.New("data manager reported failure")
)

const (
	defaultTimeout     = 2 * time.Minute
	defaultWaitTimeout = 5 * time.Minute
)

// DataManager produces and stores the cached dataset.
type DataManager interface {
	UpdateCache(ctx context.Context) (bool, error)
}

type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerCommand  Trigger = "command"
	TriggerSchedule Trigger = "schedule"
)

// Result is the outcome of one refresh attempt.
type Result struct {
	RunID     string
	Trigger   Trigger
	OK        bool
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type Stats struct {
	Runs     int64
	Failures int64
	Busy     int64
	Last     *Result
	Running  bool
}

type Options struct {
	// Timeout bounds how long a caller waits for a single data manager call.
	Timeout time.Duration
	// WaitTimeout bounds how long a caller queues behind an in-flight refresh.
	WaitTimeout time.Duration
}

// Runner serializes cache refreshes. Concurrent callers queue on a weighted
// semaphore of size one; the data manager is never entered twice at once.
type Runner struct {
	dm   DataManager
	opts Options
	lock *semaphore.Weighted
	now  func() time.Time

	mu    sync.RWMutex
	stats Stats
}

func NewRunner(dm DataManager, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	return &Runner{
		dm:   dm,
		opts: opts,
		lock: semaphore.NewWeighted(1),
		now:  time.Now,
	}
}

// Refresh runs the data manager update under the refresh lock and reports
// the outcome. It never panics and never returns an error value; failures are
// carried in Result.
func (r *Runner) Refresh(ctx context.Context, trigger Trigger) Result {
	res := Result{
		RunID:   uuid.NewString(),
		Trigger: trigger,
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, r.opts.WaitTimeout)
	err := r.lock.Acquire(waitCtx, 1)
	cancelWait()
	if err != nil {
		res.StartedAt = r.now()
		res.Err = fmt.Errorf("%w: %v", ErrRefreshBusy, err)
		r.record(res, true)
		logger.WarnCF("refresh", "Refresh skipped, lock not acquired", map[string]interface{}{
			logger.FieldRunID:   res.RunID,
			logger.FieldTrigger: string(trigger),
			logger.FieldError:   err.Error(),
		})
		return res
	}
	r.setRunning(true)

	res.StartedAt = r.now()
	logger.InfoCF("refresh", "Cache refresh started", map[string]interface{}{
		logger.FieldRunID:   res.RunID,
		logger.FieldTrigger: string(trigger),
	})

	res.OK, res.Err = r.update(ctx, res.RunID)
	res.Duration = r.now().Sub(res.StartedAt)
	r.record(res, false)

	fields := map[string]interface{}{
		logger.FieldRunID:    res.RunID,
		logger.FieldTrigger:  string(trigger),
		logger.FieldDuration: res.Duration.Milliseconds(),
	}
	if res.OK {
		logger.InfoCF("refresh", "Cache refreshed", fields)
	} else {
		fields[logger.FieldError] = res.Err.Error()
		logger.ErrorCF("refresh", "Cache refresh failed", fields)
	}
	return res
}

type callResult struct {
	ok  bool
	err error
}

// update runs the data manager call under the held lock and waits at most
// Timeout for it. A call that outlives the timeout is abandoned: the caller
// gets a failure at once and the lock is released only when the call
// returns, so the data manager is still never entered twice.
func (r *Runner) update(ctx context.Context, runID string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	out := make(chan callResult, 1)

	go func() {
		ok, err := r.call(callCtx)
		cancel()
		r.setRunning(false)
		r.lock.Release(1)
		out <- callResult{ok: ok, err: err}
	}()

	select {
	case res := <-out:
		return res.ok, res.err
	case <-callCtx.Done():
	}

	select {
	case res := <-out:
		return res.ok, res.err
	default:
	}
	logger.WarnCF("refresh", "Data manager call abandoned, lock held until it returns", map[string]interface{}{
		logger.FieldRunID: runID,
		logger.FieldError: callCtx.Err().Error(),
	})
	return false, fmt.Errorf("update cache: %w", callCtx.Err())
}

func (r *Runner) call(ctx context.Context) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("data manager panic: %v", p)
		}
	}()

	ok, err = r.dm.UpdateCache(ctx)
	switch {
	case err != nil:
		return false, fmt.Errorf("update cache: %w", err)
	case !ok:
		return false, ErrRefreshRejected
	}
	return true, nil
}

func (r *Runner) record(res Result, busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if busy {
		r.stats.Busy++
		return
	}
	r.stats.Runs++
	if !res.OK {
		r.stats.Failures++
	}
	last := res
	r.stats.Last = &last
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	r.stats.Running = v
	r.mu.Unlock()
}

// Stats returns a snapshot of the refresh counters.
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.stats
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}
