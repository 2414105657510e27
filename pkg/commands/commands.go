package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"kpibot/pkg/bus"
	"kpibot/pkg/datamanager"
	"kpibot/pkg/dispatch"
	"kpibot/pkg/logger"
	"kpibot/pkg/platform"
	"kpibot/pkg/refresh"
)

const (
	TextGreeting      = "Hi! Pick a menu item:"
	TextUpdateOK      = "Cache updated!"
	TextUpdateFailed  = "Cache update failed"
	TextUpdateLimited = "Update was requested recently, try again later"
)

// Refresher runs a refresh and exposes its counters.
type Refresher interface {
	Refresh(ctx context.Context, trigger refresh.Trigger) refresh.Result
	Stats() refresh.Stats
}

// NextFire reports the next scheduled refresh after t.
type NextFire interface {
	Next(t time.Time) time.Time
}

// SnapshotSource exposes the cached dataset. It may be nil.
type SnapshotSource interface {
	Snapshot() *datamanager.Snapshot
}

type Deps struct {
	Client    platform.Client
	Refresher Refresher
	Schedule  NextFire
	Data      SnapshotSource
	// Cooldown is the minimum spacing of on-demand refreshes. Zero disables it.
	Cooldown time.Duration
	Location *time.Location
}

// Handlers implements the bot's chat commands.
type Handlers struct {
	deps    Deps
	limiter *rate.Limiter
	now     func() time.Time
}

func New(deps Deps) *Handlers {
	limit := rate.Inf
	if deps.Cooldown > 0 {
		limit = rate.Every(deps.Cooldown)
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Handlers{
		deps:    deps,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Register binds every command to d.
func (h *Handlers) Register(d *dispatch.Dispatcher) error {
	for _, c := range []struct {
		name string
		fn   dispatch.Handler
	}{
		{"/start", h.Start},
		{"/update", h.Update},
		{"/status", h.Status},
		{"/help", h.Help},
	} {
		if err := d.Register(c.name, c.fn); err != nil {
			return fmt.Errorf("register %s: %w", c.name, err)
		}
	}
	return nil
}

func menuKeyboard() *platform.Keyboard {
	return platform.NewKeyboard([]string{"/update", "/status"})
}

func (h *Handlers) Start(ctx context.Context, ev bus.InboundEvent) error {
	return h.deps.Client.SendMessage(ctx, ev.ChatID, TextGreeting, menuKeyboard())
}

// Update runs an on-demand refresh and replies with exactly one message.
func (h *Handlers) Update(ctx context.Context, ev bus.InboundEvent) error {
	if !h.limiter.AllowN(h.now(), 1) {
		logger.InfoCF("commands", "Update throttled", map[string]interface{}{
			logger.FieldChatID:   ev.ChatID,
			logger.FieldSenderID: ev.SenderID,
		})
		return h.deps.Client.SendMessage(ctx, ev.ChatID, TextUpdateLimited, nil)
	}

	res := h.deps.Refresher.Refresh(ctx, refresh.TriggerCommand)
	text := TextUpdateFailed
	if res.OK {
		text = TextUpdateOK
	}
	return h.deps.Client.SendMessage(ctx, ev.ChatID, text, menuKeyboard())
}

func (h *Handlers) Status(ctx context.Context, ev bus.InboundEvent) error {
	return h.deps.Client.SendMessage(ctx, ev.ChatID, h.statusText(), menuKeyboard())
}

func (h *Handlers) Help(ctx context.Context, ev bus.InboundEvent) error {
	text := strings.Join([]string{
		"/start - show the menu",
		"/update - refresh the cached data now",
		"/status - refresh status and schedule",
		"/help - this message",
	}, "\n")
	return h.deps.Client.SendMessage(ctx, ev.ChatID, text, nil)
}

func (h *Handlers) statusText() string {
	now := h.now()
	stats := h.deps.Refresher.Stats()

	var b strings.Builder
	switch {
	case stats.Running:
		b.WriteString("Refresh: running\n")
	case stats.Last == nil:
		b.WriteString("Refresh: never run\n")
	case stats.Last.OK:
		fmt.Fprintf(&b, "Last refresh: ok at %s (%s)\n", stats.Last.StartedAt.In(h.deps.Location).Format("2006-01-02 15:04"), stats.Last.Trigger)
	default:
		fmt.Fprintf(&b, "Last refresh: failed at %s (%s)\n", stats.Last.StartedAt.In(h.deps.Location).Format("2006-01-02 15:04"), stats.Last.Trigger)
	}
	fmt.Fprintf(&b, "Runs: %d, failures: %d, busy: %d\n", stats.Runs, stats.Failures, stats.Busy)

	if h.deps.Schedule != nil {
		if next := h.deps.Schedule.Next(now); !next.IsZero() {
			fmt.Fprintf(&b, "Next scheduled: %s\n", next.In(h.deps.Location).Format("2006-01-02 15:04 MST"))
		}
	}
	if h.deps.Data != nil {
		if snap := h.deps.Data.Snapshot(); snap != nil {
			fmt.Fprintf(&b, "Data age: %s\n", now.Sub(snap.FetchedAt).Truncate(time.Second))
		} else {
			b.WriteString("Data: not loaded\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
