package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"mediarr/internal/eventbus"
	logx "mediarr/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus, plugins PluginSource) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	s := &Service{
		log:     log,
		cfg:     cfg,
		bus:     bus,
		plugins: plugins,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:       map[string]*job{},
		triggers:   map[string]*trigger{},
		warnLimits: map[string]*rate.Limiter{},
	}
	s.loc = s.loadLocation(cfg.Timezone)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.pool = newPool(cfg.Workers, cfg.QueueSize, log, bus)
	return s
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Run starts cron triggering and the worker pool. Triggers registered before
// Run fire once it is called.
func (s *Service) Run() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	jobs := len(s.jobs)
	triggers := len(s.triggers)
	s.mu.Unlock()

	s.pool.start()
	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("tz", s.loc.String()),
		logx.Int("jobs", jobs),
		logx.Int("triggers", triggers),
		logx.Int("workers", s.cfg.Workers))
}

// Stop halts cron triggering, stops one-shot timers, and stops the pool from
// accepting new work. In-flight job bodies are not interrupted; Stop waits
// for them until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	c := s.c
	for _, t := range s.triggers {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.pool.stop(ctx)
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// ApplyTimezone restarts cron under a new location, re-registering every
// live cron trigger. One-shot timers are unaffected (they hold absolute
// times).
func (s *Service) ApplyTimezone(tz string) {
	s.mu.Lock()
	loc := s.loadLocation(tz)
	if loc.String() == s.loc.String() {
		s.mu.Unlock()
		return
	}
	old := s.c
	s.mu.Unlock()

	// Wait for the old cron without holding the table lock: its callbacks
	// run Start, which takes the lock, and a fired callback blocked on it
	// would keep Stop's waiter from ever draining.
	if old != nil {
		<-old.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != old {
		// Lost a race with a concurrent ApplyTimezone; the winner already
		// re-registered the triggers.
		return
	}
	s.loc = loc
	s.cfg.Timezone = tz
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, t := range s.triggers {
		if t.entryID == 0 {
			continue
		}
		t.entryID = 0
		if err := s.addCronLocked(t); err != nil {
			s.log.Error("trigger re-register failed", logx.String("trigger", t.id), logx.Err(err))
		}
	}
	if s.started && !s.stopped {
		s.c.Start()
	}
	s.log.Info("scheduler timezone applied", logx.String("tz", loc.String()))
}

// Snapshot returns a diagnostics view.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	jobs := len(s.jobs)
	triggers := len(s.triggers)
	tz := s.loc.String()
	s.mu.Unlock()

	ps := s.pool.snapshot()
	return Snapshot{
		Timezone: tz,
		Workers:  s.cfg.Workers,
		Jobs:     jobs,
		Triggers: triggers,
		InFlight: ps.inFlight,
		QueueLen: ps.queueLen,
		QueueCap: ps.queueCap,
		Dropped:  ps.dropped,
	}
}
