// Package app wires configuration, logging, storage, dispatch and the
// scheduler into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"carebot/internal/config"
	"carebot/internal/dispatch"
	"carebot/internal/eventbus"
	"carebot/internal/scheduler"
	"carebot/internal/store"
	"carebot/internal/wake"
	logx "carebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	st    store.Store
	gw    *dispatch.Gateway
	sched *scheduler.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if st == nil {
		return nil, errors.New("storage is required (set storage.driver)")
	}

	gw, err := buildGateway(cfg, st, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var backup scheduler.BackupFunc
	if cfg.Scheduler.BackupDir != "" {
		dir := cfg.Scheduler.BackupDir
		backup = func(ctx context.Context) error {
			_, err := st.Backup(ctx, dir)
			return err
		}
	}

	hook := wake.Nop()
	if cfg.Scheduler.WakeTimer {
		hook = wake.Systemd()
	}

	sched := scheduler.New(schedCfg, scheduler.Deps{
		Tasks:     st,
		Schedules: st,
		Users:     st,
		Dispatch:  gw,
		Wake:      wake.Logged(hook, log.With(logx.String("comp", "wake"))),
		Backup:    backup,
	}, log.With(logx.String("comp", "scheduler")), bus)

	return &App{
		cfgm:  cfgm,
		logs:  logs,
		log:   log,
		bus:   bus,
		st:    st,
		gw:    gw,
		sched: sched,
	}, nil
}

// Scheduler exposes the scheduling API (manual triggers, cleanup calls) to
// the command surface.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Store() store.Store { return a.st }

func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		// No scheduler means no product; fail fast at startup.
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.applyConfigUpdates(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logBusEvents(runCtx)
	}()

	a.notifySystemd(runCtx)

	a.log.Info("carebot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	a.wg.Wait()

	err := a.st.Close()
	a.log.Info("carebot stopped")
	_ = a.logs.Close()
	return err
}

// applyConfigUpdates feeds hot-reloaded config into logging and scheduler.
func (a *App) applyConfigUpdates(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			schedCfg, err := mapSchedulerConfig(cfg)
			if err != nil {
				a.log.Warn("ignoring scheduler config update", logx.Err(err))
				continue
			}
			a.sched.Apply(schedCfg)
			a.log.Info("config update applied")
		}
	}
}

// logBusEvents surfaces scheduler events in the logs for diagnosability;
// users only ever see "a reminder did not arrive".
func (a *App) logBusEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

// notifySystemd reports readiness and keeps the watchdog fed when running
// under systemd. Outside systemd both calls are no-ops.
func (a *App) notifySystemd(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
