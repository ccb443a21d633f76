package scheduler

import (
	"context"
	"errors"
	"time"

	"carebot/internal/eventbus"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

func (s *Service) run(tick time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick runs one loop iteration: either the daily pass (when the wall clock
// has crossed the daily trigger) or firing of elapsed jobs. It is exported so
// tests and manual triggers can drive the scheduler without the background
// goroutine.
func (s *Service) Tick(ctx context.Context) {
	s.mu.Lock()
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	now := s.clk.Now().In(loc)
	daily := s.dailySched != nil && !now.Before(s.nextDaily)
	if daily {
		s.nextDaily = s.dailySched.Next(now)
	}
	s.mu.Unlock()

	if daily {
		s.runDailyPass(ctx, now)
		return
	}
	s.fireDue(ctx, now)
}

// runDailyPass performs the full reconciliation, the orphan scan, and the
// weekly backup check back-to-back.
func (s *Service) runDailyPass(ctx context.Context, now time.Time) {
	start := time.Now()
	users, rebuilt := s.reconcileAll(ctx, now)

	s.mu.Lock()
	orphans := s.cleanupOrphansLocked(ctx)
	s.mu.Unlock()

	s.checkBackup(ctx, now)
	s.armWakeTimer(ctx)

	s.publish(eventbus.TypeReconciled, map[string]any{"users": users, "jobs": rebuilt, "orphans_removed": orphans})
	s.log.Info("daily pass complete",
		logx.Int("users", users),
		logx.Int("jobs", rebuilt),
		logx.Int("orphans_removed", orphans),
		logx.Duration("took", time.Since(start)))
}

// reconcileAll clears the one-shot jobs built by the previous cycle and
// rebuilds the message, check-in and task-reminder set for every known user.
// User-created jobs persist, daily and one-shot alike: their fire times are
// not derivable from configuration, so clearing them would lose the reminder
// for good. One bad user never aborts the cycle.
func (s *Service) reconcileAll(ctx context.Context, now time.Time) (users, jobs int) {
	all, err := s.deps.Users.ListUsers(ctx)
	if err != nil {
		s.log.Error("reconciliation: listing users failed", logx.Err(err))
		return 0, 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.jobs.Remove(func(j Job) bool {
		return j.Recurrence == OneShot && j.Origin == OriginRebuild
	})
	s.log.Debug("accumulated jobs cleared", logx.Int("count", cleared))

	for _, u := range all {
		if err := s.scheduleUserLocked(ctx, now, u.ID); err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				s.log.Warn("skipping unit during reconciliation", logx.Err(err))
				continue
			}
			s.log.Error("scheduling user failed", logx.String("user", u.ID), logx.Err(err))
			continue
		}
		users++
	}
	return users, s.jobs.Len()
}

// ScheduleNewUser builds jobs for one user without a full reconciliation
// pass. It takes the same mutation guard as the background loop.
func (s *Service) ScheduleNewUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	if s.loc != nil {
		now = now.In(s.loc)
	}
	if err := s.scheduleUserLocked(ctx, now, userID); err != nil {
		return err
	}
	s.log.Info("user scheduled", logx.String("user", userID))
	return nil
}

// scheduleUserLocked rebuilds the daily job set for one user: every message
// category, check-ins, then task reminders. Call with s.mu held.
func (s *Service) scheduleUserLocked(ctx context.Context, now time.Time, userID string) error {
	loc, err := s.userLocationLocked(ctx, userID)
	if err != nil {
		return err
	}
	local := now.In(loc)

	for _, cat := range s.cfg.Categories {
		if err := s.scheduleCategoryLocked(ctx, local, userID, cat, KindMessage, loc); err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				// Per-unit isolation: a bad category skips that category only.
				s.log.Warn("skipping category", logx.Err(err))
				continue
			}
			return err
		}
	}
	if err := s.scheduleCategoryLocked(ctx, local, userID, CategoryCheckin, KindCheckin, loc); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			s.log.Warn("skipping category", logx.Err(err))
		} else {
			return err
		}
	}

	if _, err := s.scheduleAllTaskRemindersLocked(ctx, userID); err != nil {
		return err
	}
	return nil
}

// scheduleCategoryLocked adds one job per active period applying today,
// at a random minute inside the window, skipping anything that would fire
// within the conflict window of an existing job.
func (s *Service) scheduleCategoryLocked(ctx context.Context, now time.Time, userID, category string, kind Kind, loc *time.Location) error {
	periods, err := s.deps.Schedules.GetTimePeriods(ctx, userID, category)
	if err != nil {
		return &ConfigError{UserID: userID, Category: category, Err: err}
	}
	if len(periods) == 0 {
		return nil
	}
	if err := store.ValidatePeriods(periods); err != nil {
		return &ConfigError{UserID: userID, Category: category, Err: err}
	}

	for _, p := range periods {
		if !p.Active || !p.AppliesOn(now.Weekday()) {
			continue
		}
		fire, ok := s.randomTimeInWindow(now, now, p.Start, p.End, loc)
		if !ok {
			continue
		}
		if s.IsTimeConflict(userID, fire) {
			s.log.Debug("slot conflicts with existing job",
				logx.String("user", userID), logx.String("category", category), logx.Time("at", fire))
			continue
		}
		s.jobs.Add(Job{
			UserID:     userID,
			Kind:       kind,
			Category:   category,
			FireTime:   fire,
			Recurrence: OneShot,
		})
	}
	return nil
}

// fireDue dispatches every job whose fire time has elapsed. Job data is
// copied out before dispatch; no store lock is held across a send.
func (s *Service) fireDue(ctx context.Context, now time.Time) {
	due := s.jobs.List(func(j Job) bool { return !j.FireTime.After(now) })
	if len(due) == 0 {
		return
	}

	s.mu.Lock()
	attempts, delay := s.cfg.RetryAttempts, s.cfg.RetryDelay
	s.mu.Unlock()

	for _, job := range due {
		d, ok := s.buildDelivery(ctx, job)
		if !ok {
			continue // orphan handled inside
		}

		err := s.dispatchWithRetry(ctx, d, attempts, delay)

		s.mu.Lock()
		switch {
		case job.Recurrence == Daily:
			// Daily jobs stay scheduled for their next natural occurrence
			// regardless of today's outcome.
			next := s.nextDailyOccurrence(job.FireTime, now)
			s.jobs.Update(job.ID, func(j *Job) { j.FireTime = next })
		default:
			s.jobs.Remove(func(x Job) bool { return x.ID == job.ID })
		}
		s.mu.Unlock()

		if err != nil {
			// Never silently discarded: retries are exhausted at this point.
			s.log.Error("job dispatch failed; dropping this occurrence",
				logx.String("job", job.ID),
				logx.String("user", job.UserID),
				logx.String("kind", job.Kind.String()),
				logx.Int("attempts", attempts),
				logx.Err(err))
			s.publish(eventbus.TypeJobFailed, map[string]any{"job": job.ID, "user": job.UserID, "kind": job.Kind.String()})
			continue
		}
		s.log.Info("job fired",
			logx.String("job", job.ID),
			logx.String("user", job.UserID),
			logx.String("kind", job.Kind.String()))
		s.publish(eventbus.TypeJobFired, map[string]any{"job": job.ID, "user": job.UserID, "kind": job.Kind.String()})
	}
}

// buildDelivery copies the job into a dispatch payload. A task reminder whose
// task is gone or completed is an orphan: removed here, logged, never sent.
func (s *Service) buildDelivery(ctx context.Context, job Job) (Delivery, bool) {
	d := Delivery{
		JobID:    job.ID,
		UserID:   job.UserID,
		Kind:     job.Kind,
		Category: job.Category,
		TaskID:   job.TaskID,
	}
	if job.Kind != KindTaskReminder {
		return d, true
	}

	t, err := s.deps.Tasks.GetTask(ctx, job.TaskID)
	switch {
	case errors.Is(err, store.ErrNotFound), err == nil && t.Completed:
		s.mu.Lock()
		s.jobs.Remove(func(x Job) bool { return x.ID == job.ID })
		s.mu.Unlock()
		s.log.Info("orphaned reminder removed at fire time",
			logx.String("user", job.UserID), logx.String("task", job.TaskID))
		return Delivery{}, false
	case err != nil:
		s.log.Warn("task lookup failed at fire time; keeping job for next tick",
			logx.String("task", job.TaskID), logx.Err(err))
		return Delivery{}, false
	}
	d.TaskTitle = t.Title
	return d, true
}

// dispatchWithRetry sends with a fixed attempt count and fixed delay between
// attempts, so a misbehaving gateway cannot stall the loop beyond
// attempts x per-attempt timeout.
func (s *Service) dispatchWithRetry(ctx context.Context, d Delivery, attempts int, delay time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.deps.Dispatch.Send(ctx, d)
		if err == nil {
			return nil
		}
		if attempt < attempts {
			s.log.Warn("dispatch attempt failed; retrying",
				logx.String("job", d.JobID),
				logx.Int("attempt", attempt),
				logx.Duration("delay", delay),
				logx.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

// checkBackup invokes the delegated backup when the configured interval has
// elapsed. Failures are logged; the pass continues.
func (s *Service) checkBackup(ctx context.Context, now time.Time) {
	if s.deps.Backup == nil {
		return
	}
	s.mu.Lock()
	every := s.cfg.BackupEvery
	due := every > 0 && now.Sub(s.lastBackup) >= every
	if due {
		s.lastBackup = now
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.deps.Backup(ctx); err != nil {
		s.log.Error("weekly backup failed", logx.Err(err))
		return
	}
	s.log.Info("weekly backup done")
}

// armWakeTimer forwards the earliest upcoming fire time to the platform wake
// hook. Best effort only.
func (s *Service) armWakeTimer(ctx context.Context) {
	if s.deps.Wake == nil {
		return
	}
	next, ok := s.jobs.NextFireAny()
	if !ok {
		return
	}
	if err := s.deps.Wake.ScheduleWake(ctx, next, "carebot next fire"); err != nil {
		s.log.Warn("wake timer hook failed", logx.Time("at", next), logx.Err(err))
	}
}
