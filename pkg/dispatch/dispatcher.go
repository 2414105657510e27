package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"kpibot/pkg/bus"
	"kpibot/pkg/logger"
)

var ErrDuplicateHandler = errors.New("handler already registered")

// Handler processes one inbound event. Returned errors are logged, never
// propagated past the dispatcher.
type Handler func(ctx context.Context, ev bus.InboundEvent) error

// Dispatcher routes events to handlers by exact discriminator match.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds discriminator to h. Binding the same discriminator twice is
// an error; nothing is overwritten.
func (d *Dispatcher) Register(discriminator string, h Handler) error {
	key := normalizeKey(discriminator)
	if key == "" {
		return fmt.Errorf("register handler: empty discriminator")
	}
	if h == nil {
		return fmt.Errorf("register handler %q: nil handler", key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[key]; exists {
		return fmt.Errorf("register handler %q: %w", key, ErrDuplicateHandler)
	}
	d.handlers[key] = h
	return nil
}

// Dispatch invokes the handler bound to ev.Discriminator and waits for it.
// It reports whether a handler ran. Unknown discriminators are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev bus.InboundEvent) bool {
	d.mu.RLock()
	h, ok := d.handlers[ev.Discriminator]
	d.mu.RUnlock()

	if !ok {
		logger.DebugCF("dispatch", "No handler for event, dropped", map[string]interface{}{
			logger.FieldUpdateID: ev.UpdateID,
			logger.FieldCommand:  ev.Discriminator,
			"kind":               ev.Kind,
		})
		return false
	}

	d.invoke(ctx, h, ev)
	return true
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev bus.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("dispatch", "Recovered panic in handler", map[string]interface{}{
				logger.FieldCommand: ev.Discriminator,
				logger.FieldChatID:  ev.ChatID,
				"panic":             fmt.Sprintf("%v", r),
			})
		}
	}()

	if err := h(ctx, ev); err != nil {
		logger.ErrorCF("dispatch", "Handler failed", map[string]interface{}{
			logger.FieldCommand: ev.Discriminator,
			logger.FieldChatID:  ev.ChatID,
			logger.FieldError:   err.Error(),
		})
	}
}

// Discriminators lists the registered keys, sorted.
func (d *Dispatcher) Discriminators() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeKey(discriminator string) string {
	key := strings.TrimSpace(discriminator)
	if strings.HasPrefix(key, "/") {
		key = strings.ToLower(key)
	}
	return key
}
