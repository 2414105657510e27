package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kpibot/pkg/bus"
	"kpibot/pkg/commands"
	"kpibot/pkg/config"
	"kpibot/pkg/dispatch"
	"kpibot/pkg/logger"
	"kpibot/pkg/platform"
	"kpibot/pkg/refresh"
	"kpibot/pkg/schedule"
	"kpibot/pkg/server"
)

type State int32

const (
	StateStarting State = iota
	StateServing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateServing:
		return "SERVING"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// App owns every long-lived component and drives the process lifecycle.
type App struct {
	cfg        *config.Config
	client     platform.Client
	runner     *refresh.Runner
	dispatcher *dispatch.Dispatcher
	queue      *bus.Queue
	pool       *dispatch.Pool
	scheduler  *schedule.Scheduler
	server     *server.Server

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
	addrMu    sync.RWMutex
	addr      net.Addr
}

// New wires the components. dm may also expose Snapshot() for /status.
func New(cfg *config.Config, client platform.Client, dm refresh.DataManager) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	runner := refresh.NewRunner(dm, refresh.Options{
		Timeout:     cfg.Refresh.Timeout,
		WaitTimeout: cfg.Refresh.WaitTimeout,
	})
	sched, err := schedule.New(runner, cfg.Refresh.UpdateTimes, loc)
	if err != nil {
		return nil, err
	}

	deps := commands.Deps{
		Client:    client,
		Refresher: runner,
		Schedule:  sched,
		Cooldown:  cfg.Refresh.UpdateCooldown,
		Location:  loc,
	}
	if src, ok := dm.(commands.SnapshotSource); ok {
		deps.Data = src
	}

	dispatcher := dispatch.NewDispatcher()
	if err := commands.New(deps).Register(dispatcher); err != nil {
		return nil, err
	}

	queue := bus.NewQueue(cfg.Dispatch.QueueSize)
	a := &App{
		cfg:        cfg,
		client:     client,
		runner:     runner,
		dispatcher: dispatcher,
		queue:      queue,
		pool:       dispatch.NewPool(dispatcher, queue, cfg.Dispatch.Workers),
		scheduler:  sched,
		server: server.NewServer(queue, server.Options{
			WebhookPath: cfg.Webhook.Path,
			Secret:      cfg.Webhook.Secret,
			BotUsername: cfg.Telegram.Username,
		}),
		ready: make(chan struct{}),
	}
	a.state.Store(int32(StateStarting))
	return a, nil
}

func (a *App) State() State {
	return State(a.state.Load())
}

func (a *App) setState(s State) {
	a.state.Store(int32(s))
	logger.InfoCF("app", "State changed", map[string]interface{}{
		logger.FieldState: s.String(),
	})
}

// Ready is closed once the app is accepting webhook traffic.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Addr is the bound listener address, nil before Run binds it.
func (a *App) Addr() net.Addr {
	a.addrMu.RLock()
	defer a.addrMu.RUnlock()
	return a.addr
}

// Run starts the app and blocks until ctx is cancelled and shutdown has
// finished. A listener bind failure is returned before anything else runs.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr())
	if err != nil {
		a.setState(StateStopped)
		return fmt.Errorf("bind %s: %w", a.cfg.ListenAddr(), err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()
	logger.InfoCF("app", "Listener bound", map[string]interface{}{
		logger.FieldAddr: ln.Addr().String(),
	})

	if res := a.runner.Refresh(ctx, refresh.TriggerStartup); !res.OK {
		logger.WarnCF("app", "Initial cache refresh failed, continuing", map[string]interface{}{
			logger.FieldRunID: res.RunID,
			logger.FieldError: errString(res.Err),
		})
	}

	a.registerWebhook(ctx)

	a.pool.Start(ctx)
	a.scheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	a.setState(StateServing)
	a.readyOnce.Do(func() { close(a.ready) })

	err = g.Wait()
	a.setState(StateStopped)
	return err
}

func (a *App) registerWebhook(ctx context.Context) {
	url, err := a.cfg.WebhookURL()
	if err != nil {
		logger.WarnCF("app", "Webhook not registered", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return
	}
	if err := a.client.SetWebhook(ctx, url, a.cfg.Webhook.Secret); err != nil {
		logger.WarnCF("app", "Webhook registration failed, serving without it", map[string]interface{}{
			logger.FieldURL:   url,
			logger.FieldError: err.Error(),
		})
		return
	}
	logger.InfoCF("app", "Webhook registered", map[string]interface{}{
		logger.FieldURL: url,
	})
}

func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger.InfoC("app", "Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.client.DeleteWebhook(ctx); err != nil {
		logger.WarnCF("app", "Webhook removal failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.scheduler.Stop()
	a.pool.Stop(timeout)

	logger.InfoC("app", "Shutdown complete")
	return errors.Join(errs...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
