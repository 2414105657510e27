package dispatch

import (
	"context"
	"sync"
	"time"

	"kpibot/pkg/bus"
	"kpibot/pkg/lifecycle"
	"kpibot/pkg/logger"
)

// Pool drains a queue with a fixed number of workers, each awaiting its
// dispatch before taking the next event.
type Pool struct {
	dispatcher *Dispatcher
	queue      *bus.Queue
	workers    int
	runner     *lifecycle.LoopRunner
}

func NewPool(d *Dispatcher, q *bus.Queue, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		dispatcher: d,
		queue:      q,
		workers:    workers,
		runner:     lifecycle.NewLoopRunner(),
	}
}

func (p *Pool) Start(ctx context.Context) {
	// Workers use a detached context so in-flight handlers are not cut
	// short by shutdown; they exit once the queue is closed and drained.
	work := context.WithoutCancel(ctx)
	p.runner.Start(ctx, func(_ context.Context) {
		var wg sync.WaitGroup
		for i := 0; i < p.workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				p.work(work, id)
			}(i)
		}
		wg.Wait()
	})
	logger.InfoCF("dispatch", "Dispatch workers started", map[string]interface{}{
		"workers": p.workers,
	})
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		ev, ok := p.queue.Consume(ctx)
		if !ok {
			return
		}
		logger.DebugCF("dispatch", "Event picked up", map[string]interface{}{
			logger.FieldUpdateID: ev.UpdateID,
			logger.FieldCommand:  ev.Discriminator,
			"worker":             id,
		})
		p.dispatcher.Dispatch(ctx, ev)
	}
}

// Stop closes the queue and waits up to timeout for queued and in-flight
// events to finish.
func (p *Pool) Stop(timeout time.Duration) {
	p.queue.Close()
	if !p.runner.StopTimeout(timeout) {
		logger.WarnCF("dispatch", "Timeout waiting for dispatch workers to stop", map[string]interface{}{
			"pending": p.queue.Len(),
		})
	}
}
