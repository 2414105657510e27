package bus

import (
	"context"
	"sync"
	"time"

	"kpibot/pkg/logger"
)

const defaultQueueSize = 100

// Queue is a bounded FIFO of inbound events between the webhook server and
// the dispatch workers.
type Queue struct {
	events       chan InboundEvent
	writeTimeout time.Duration
	mu           sync.RWMutex
	closed       bool
	closeOnce    sync.Once
}

const queueWriteTimeout = 2 * time.Second

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{
		events:       make(chan InboundEvent, size),
		writeTimeout: queueWriteTimeout,
	}
}

// Publish enqueues ev, waiting at most the write timeout for space.
// It reports whether the event was accepted.
func (q *Queue) Publish(ev InboundEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		logger.WarnCF("bus", "Publish on closed queue dropped event", map[string]interface{}{
			logger.FieldUpdateID: ev.UpdateID,
		})
		return false
	}

	select {
	case q.events <- ev:
		return true
	default:
	}

	timer := time.NewTimer(q.writeTimeout)
	defer timer.Stop()
	select {
	case q.events <- ev:
		return true
	case <-timer.C:
		logger.ErrorCF("bus", "Publish timeout (queue full), event dropped", map[string]interface{}{
			logger.FieldUpdateID: ev.UpdateID,
			logger.FieldChatID:   ev.ChatID,
			logger.FieldCommand:  ev.Discriminator,
		})
		return false
	}
}

// Consume blocks until an event is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue) Consume(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev, ok := <-q.events:
		return ev, ok
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

func (q *Queue) Len() int {
	return len(q.events)
}

// Close stops accepting events. Buffered events can still be consumed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.events)
		q.mu.Unlock()
	})
}
