package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"carebot/internal/clock"
	"carebot/internal/eventbus"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

// Service owns the job store and the background reconciliation loop.
//
// Concurrency model: one background goroutine runs ticks; every mutator
// (reconciliation, lifecycle API, manual triggers) takes s.mu, so no two
// mutators interleave. Reads go through the job store's own RWMutex and may
// run concurrently with each other.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	bus  eventbus.Bus
	cfg  Config
	deps Deps

	jobs *JobStore
	clk  clock.Clock

	rngMu sync.Mutex
	rng   *rand.Rand

	parser cron.Parser

	// guarded by mu
	loc        *time.Location
	locs       map[string]*time.Location
	dailySched cron.Schedule
	nextDaily  time.Time
	lastBackup time.Time

	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.RNG == nil {
		deps.RNG = clock.NewRand(time.Now().UnixNano())
	}
	return &Service{
		log:  log,
		bus:  bus,
		cfg:  cfg.withDefaults(),
		deps: deps,
		jobs: NewJobStore(),
		clk:  deps.Clock,
		rng:  deps.RNG,
		// Minute granularity is all we schedule at; no seconds field.
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		locs:   map[string]*time.Location{},
	}
}

// Jobs exposes the job store for read-side collaborators (status output,
// tests). Mutations go through the service API.
func (s *Service) Jobs() *JobStore { return s.jobs }

// Start launches the reconciliation loop. Idempotent: calling Start while
// running is a no-op. A fatal misconfiguration (bad timezone or daily
// trigger) is returned so the owning service can fail fast at startup.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	loc, err := loadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}
	sched, err := s.parseDailyTrigger(s.cfg.DailyTrigger)
	if err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}

	s.loc = loc
	s.dailySched = sched
	now := s.clk.Now().In(loc)
	s.nextDaily = sched.Next(now)
	s.lastBackup = now

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.run(s.cfg.TickInterval, s.stop, s.done)

	s.log.Info("scheduler started",
		logx.String("tz", loc.String()),
		logx.Duration("tick", s.cfg.TickInterval),
		logx.Time("next_daily", s.nextDaily))
	return nil
}

// Stop signals the loop to exit after the current tick and waits for it
// (bounded by ctx). An in-flight firing finishes its dispatch; the job store
// is never left mid-mutation.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-ctx.Done():
		// best-effort; the goroutine exits at its next select
	}
	s.log.Info("scheduler stopped")
}

// Apply updates runtime configuration (hot reload). Timezone and daily
// trigger changes take effect on the next tick.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := s.cfg.Timezone
	oldTrigger := s.cfg.DailyTrigger
	s.cfg = cfg

	if !s.running {
		return
	}
	if cfg.Timezone != oldTZ {
		if loc, err := loadLocation(cfg.Timezone); err != nil {
			s.log.Warn("invalid timezone in config update; keeping previous",
				logx.String("tz", cfg.Timezone), logx.Err(err))
		} else {
			s.loc = loc
			s.locs = map[string]*time.Location{}
		}
	}
	if cfg.DailyTrigger != oldTrigger {
		if sched, err := s.parseDailyTrigger(cfg.DailyTrigger); err != nil {
			s.log.Warn("invalid daily trigger in config update; keeping previous",
				logx.String("at", cfg.DailyTrigger), logx.Err(err))
		} else {
			s.dailySched = sched
			s.nextDaily = sched.Next(s.clk.Now().In(s.loc))
		}
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.running
	nextDaily := s.nextDaily
	lastBackup := s.lastBackup
	s.mu.Unlock()

	next, _ := s.jobs.NextFireAny()
	return Snapshot{
		Running:    running,
		Jobs:       s.jobs.Len(),
		NextDaily:  nextDaily,
		NextFire:   next,
		LastBackup: lastBackup,
	}
}

// parseDailyTrigger converts "HH:MM" into a daily cron schedule in the
// service timezone.
func (s *Service) parseDailyTrigger(hhmm string) (cron.Schedule, error) {
	h, m, err := store.ParseHHMM(hhmm)
	if err != nil {
		return nil, fmt.Errorf("daily trigger: %w", err)
	}
	return s.parser.Parse(fmt.Sprintf("%d %d * * *", m, h))
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// userLocationLocked resolves the user's timezone, falling back to the
// service timezone when unset. An invalid value is a per-user ConfigError.
// Call with s.mu held.
func (s *Service) userLocationLocked(ctx context.Context, userID string) (*time.Location, error) {
	if loc, ok := s.locs[userID]; ok {
		return loc, nil
	}
	tz, err := s.deps.Schedules.GetTimezone(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, &ConfigError{UserID: userID, Err: err}
	}
	if strings.TrimSpace(tz) == "" {
		loc := s.loc
		if loc == nil {
			loc = time.Local
		}
		s.locs[userID] = loc
		return loc, nil
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return nil, &ConfigError{UserID: userID, Err: err}
	}
	s.locs[userID] = loc
	return loc, nil
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
