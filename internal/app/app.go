package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mediarr/internal/config"
	"mediarr/internal/eventbus"
	"mediarr/internal/filter"
	"mediarr/internal/plugin"
	"mediarr/internal/scheduler"
	logx "mediarr/pkg/logx"
)

// App wires the config manager, logging service, event bus, filter engine,
// plugin manager and scheduler together and owns their lifecycle.
type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	fe    *filter.Engine
	sched *scheduler.Service
	pm    *plugin.Manager

	collab Collaborators

	// refreshTriggers tracks the physical subscribe-refresh triggers so a
	// spider<->rss mode switch can tear the old set down.
	refreshMu       sync.Mutex
	refreshTriggers []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string, collab Collaborators) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
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
	pm := plugin.NewManager(log.With(logx.String("comp", "plugins")))
	sched := scheduler.New(scheduler.Config{
		Timezone:  cfg.Scheduler.Timezone,
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
	}, log.With(logx.String("comp", "scheduler")), bus, pm)

	collab.normalize()

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		fe:      filter.NewEngine(log.With(logx.String("comp", "filter"))),
		sched:   sched,
		pm:      pm,
		collab:  collab,
	}, nil
}

func (a *App) Plugins() *plugin.Manager { return a.pm }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Bus() eventbus.Bus { return a.bus }

// FilterReleases classifies releases against the configured rule chain.
func (a *App) FilterReleases(releases []filter.Release) []filter.Release {
	chain := ""
	if cfg := a.cfgm.Get(); cfg != nil {
		chain = cfg.Filter.RuleChain
	}
	return a.fe.FilterAndPrioritize(releases, chain)
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		for _, f := range []struct{ path, raw string }{
			{"jobs.cookie_sync_interval", cfg.Jobs.CookieSyncInterval},
			{"jobs.media_server_sync_interval", cfg.Jobs.MediaServerSyncInterval},
			{"jobs.subscribe_rss_interval", cfg.Jobs.SubscribeRSSInterval},
			{"jobs.cache_clear_interval", cfg.Jobs.CacheClearInterval},
		} {
			if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if err := a.applyJobs(cfg); err != nil {
		return err
	}
	a.applyPlugins(cfg)
	a.sched.Run()

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.sched.ApplyTimezone(cfg.Scheduler.Timezone)
			if err := a.applyJobs(cfg); err != nil {
				a.log.Warn("built-in job reload failed", logx.Err(err))
			}
			a.applyPlugins(cfg)
			a.log.Info("config reloaded")
		}
	}
}

// applyPlugins reconciles the plugin manager with the configured enable
// flags and refreshes the scheduled services of every running plugin.
func (a *App) applyPlugins(cfg *config.Config) {
	if cfg == nil {
		return
	}
	for id, pc := range cfg.Plugins {
		if pc.Enabled {
			if err := a.pm.Enable(id); err != nil {
				a.log.Warn("plugin enable failed", logx.String("plugin", id), logx.Err(err))
				continue
			}
		} else {
			a.pm.Disable(id)
			a.sched.RemovePluginJob(id)
		}
	}
	for _, id := range a.pm.RunningIDs() {
		a.sched.UpdatePluginJob(id)
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not stop in time")
	}

	a.log.Info("app stopped")
	return a.logs.Close()
}
