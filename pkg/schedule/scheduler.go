package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kpibot/pkg/config"
	"kpibot/pkg/lifecycle"
	"kpibot/pkg/logger"
	"kpibot/pkg/refresh"
)

type Refresher interface {
	Refresh(ctx context.Context, trigger refresh.Trigger) refresh.Result
}

// Scheduler fires the refresh at each configured wall-clock time in its
// timezone. Missed fires are not caught up and at most one refresh is
// started per minute.
type Scheduler struct {
	refresher Refresher
	entries   config.Schedule
	loc       *time.Location
	cron      *cron.Cron
	specs     []cron.Schedule
	runner    *lifecycle.LoopRunner
	now       func() time.Time

	mu        sync.Mutex
	jobCtx    context.Context
	lastFired time.Time
}

func New(r Refresher, entries config.Schedule, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	entries = config.NewSchedule(entries...)
	if len(entries) == 0 {
		return nil, fmt.Errorf("schedule: no entries")
	}

	log := cronLogger{}
	s := &Scheduler{
		refresher: r,
		entries:   entries,
		loc:       loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log)),
		),
		runner: lifecycle.NewLoopRunner(),
		now:    time.Now,
		jobCtx: context.Background(),
	}

	for _, e := range entries {
		spec := fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), e.Minute, e.Hour)
		parsed, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %s: %w", e, err)
		}
		if _, err := s.cron.AddJob(spec, cron.FuncJob(s.onTick)); err != nil {
			return nil, fmt.Errorf("schedule entry %s: %w", e, err)
		}
		s.specs = append(s.specs, parsed)
	}
	return s, nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.runner.Start(ctx, func(ctx context.Context) {
		s.mu.Lock()
		s.jobCtx = ctx
		s.mu.Unlock()

		s.cron.Start()
		logger.InfoCF("schedule", "Refresh schedule started", map[string]interface{}{
			"entries":  s.entries.String(),
			"timezone": s.loc.String(),
			"next":     s.Next(s.now()).Format(time.RFC3339),
		})

		<-ctx.Done()
		<-s.cron.Stop().Done()
	})
}

// Stop halts the timer and waits for an in-flight scheduled refresh.
func (s *Scheduler) Stop() {
	if !s.runner.Running() {
		return
	}
	s.runner.Stop()
	logger.InfoC("schedule", "Refresh schedule stopped")
}

// Next returns the earliest fire instant strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	var next time.Time
	for _, spec := range s.specs {
		n := spec.Next(t)
		if n.IsZero() {
			continue
		}
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

// Upcoming lists the next n fire instants after t in the schedule timezone.
func (s *Scheduler) Upcoming(t time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for len(out) < n {
		next := s.Next(t)
		if next.IsZero() {
			break
		}
		out = append(out, next.In(s.loc))
		t = next
	}
	return out
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// onTick runs on the cron goroutine. Stop cancels the loop context but
// waits for the job, so the refresh gets a detached context.
func (s *Scheduler) onTick() {
	s.mu.Lock()
	ctx := context.WithoutCancel(s.jobCtx)
	s.mu.Unlock()
	s.fire(ctx, s.now())
}

// fire runs one scheduled refresh for the minute containing at. A second
// fire within an already fired minute is skipped.
func (s *Scheduler) fire(ctx context.Context, at time.Time) bool {
	minute := at.In(s.loc).Truncate(time.Minute)

	s.mu.Lock()
	if !s.lastFired.IsZero() && !minute.After(s.lastFired) {
		s.mu.Unlock()
		logger.DebugCF("schedule", "Duplicate fire within minute skipped", map[string]interface{}{
			"minute": minute.Format(time.RFC3339),
		})
		return false
	}
	s.lastFired = minute
	s.mu.Unlock()

	logger.InfoCF("schedule", "Scheduled cache refresh", map[string]interface{}{
		"minute": minute.Format(time.RFC3339),
	})
	s.refresher.Refresh(ctx, refresh.TriggerSchedule)
	return true
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.DebugCF("schedule", msg, kvFields(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields[logger.FieldError] = err.Error()
	logger.ErrorCF("schedule", msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
