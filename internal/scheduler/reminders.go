package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"carebot/internal/eventbus"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

// ScheduleTaskReminderAt creates a one-shot reminder for the task at the
// given local date ("YYYY-MM-DD") and time ("HH:MM") in the user's timezone.
// Fire times behind the clock are rejected with ErrPastFireTime; a fire time
// colliding with an existing job returns ErrTimeConflict.
func (s *Service) ScheduleTaskReminderAt(ctx context.Context, userID string, task store.Task, date, hhmm string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := s.userLocationLocked(ctx, userID)
	if err != nil {
		return Job{}, err
	}
	day, err := store.ParseDate(date, loc)
	if err != nil {
		return Job{}, err
	}
	h, m, err := store.ParseHHMM(hhmm)
	if err != nil {
		return Job{}, err
	}
	fire := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)

	if !fire.After(s.clk.Now()) {
		return Job{}, fmt.Errorf("%w: %s %s", ErrPastFireTime, date, hhmm)
	}
	if s.IsTimeConflict(userID, fire) {
		return Job{}, ErrTimeConflict
	}

	job := Job{
		UserID:     userID,
		Kind:       KindTaskReminder,
		TaskID:     task.ID,
		FireTime:   fire,
		Recurrence: OneShot,
		Origin:     OriginUser,
	}
	job.ID = s.jobs.Add(job)
	s.log.Debug("task reminder scheduled",
		logx.String("user", userID), logx.String("task", task.ID), logx.Time("at", fire))
	return job, nil
}

// ScheduleDailyTaskReminder creates a recurring reminder firing at hhmm every
// day (user timezone) until the task's reminders are cleaned up. The first
// occurrence is today if the time is still ahead, otherwise tomorrow.
func (s *Service) ScheduleDailyTaskReminder(ctx context.Context, userID string, task store.Task, hhmm string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := s.userLocationLocked(ctx, userID)
	if err != nil {
		return Job{}, err
	}
	h, m, err := store.ParseHHMM(hhmm)
	if err != nil {
		return Job{}, err
	}

	now := s.clk.Now().In(loc)
	fire := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, loc)
	if !fire.After(now) {
		fire = s.nextDailyOccurrence(fire, now)
	}
	if s.IsTimeConflict(userID, fire) {
		return Job{}, ErrTimeConflict
	}

	job := Job{
		UserID:     userID,
		Kind:       KindTaskReminder,
		TaskID:     task.ID,
		FireTime:   fire,
		Recurrence: Daily,
		Origin:     OriginUser,
	}
	job.ID = s.jobs.Add(job)
	s.log.Debug("daily task reminder scheduled",
		logx.String("user", userID), logx.String("task", task.ID), logx.Time("first", fire))
	return job, nil
}

// ScheduleAllTaskReminders groups the active reminder periods across the
// user's incomplete tasks, draws one task per period, and schedules a
// one-shot reminder at a uniformly random minute within each window. At most
// one reminder job exists per period per cycle; the count scheduled is
// returned.
func (s *Service) ScheduleAllTaskReminders(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleAllTaskRemindersLocked(ctx, userID)
}

type periodGroup struct {
	period store.ReminderPeriod
	tasks  []store.Task
}

func (s *Service) scheduleAllTaskRemindersLocked(ctx context.Context, userID string) (int, error) {
	loc, err := s.userLocationLocked(ctx, userID)
	if err != nil {
		return 0, err
	}
	// A store read failure is operational, not a configuration problem; it
	// goes back unwrapped and the caller logs and moves on.
	tasks, err := s.deps.Tasks.ListIncompleteTasks(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list tasks for %s: %w", userID, err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	// Group equal periods so each window gets exactly one draw, independent
	// of how many tasks share it.
	groups := map[string]*periodGroup{}
	for _, t := range tasks {
		for _, p := range t.ReminderPeriods {
			g, ok := groups[p.Key()]
			if !ok {
				g = &periodGroup{period: p}
				groups[p.Key()] = g
			}
			g.tasks = append(g.tasks, t)
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.clk.Now().In(loc)
	scheduled := 0
	for _, k := range keys {
		g := groups[k]

		day := now
		if g.period.Date != "" {
			d, derr := store.ParseDate(g.period.Date, loc)
			if derr != nil {
				s.log.Warn("skipping reminder period with bad date",
					logx.String("user", userID), logx.String("date", g.period.Date), logx.Err(derr))
				continue
			}
			if d.Before(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)) {
				continue // window day already behind us
			}
			day = d
		}

		picked := s.SelectTaskForReminder(g.tasks)
		if picked == nil {
			continue
		}

		fire, ok := s.randomTimeInWindow(now, day, g.period.Start, g.period.End, loc)
		if !ok {
			continue // window already passed for today
		}
		if s.IsTimeConflict(userID, fire) {
			s.log.Debug("reminder slot conflicts with existing job",
				logx.String("user", userID), logx.Time("at", fire))
			continue
		}

		s.jobs.Add(Job{
			UserID:     userID,
			Kind:       KindTaskReminder,
			TaskID:     picked.ID,
			FireTime:   fire,
			Recurrence: OneShot,
		})
		scheduled++
	}
	if scheduled > 0 {
		s.log.Debug("task reminders scheduled",
			logx.String("user", userID), logx.Int("count", scheduled))
	}
	return scheduled, nil
}

// CleanupTaskReminders removes every reminder job (one-shot and daily) tied
// to the task. "Nothing to clean" is success, not a failure: completion and
// deletion paths call this unconditionally, and an earlier generation of this
// codebase silently leaked reminders forever because its equivalent call was
// broken.
func (s *Service) CleanupTaskReminders(userID, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.jobs.Remove(func(j Job) bool {
		return j.Kind == KindTaskReminder && j.UserID == userID && j.TaskID == taskID
	})
	s.log.Debug("task reminders cleaned",
		logx.String("user", userID), logx.String("task", taskID), logx.Int("removed", removed))
	return true
}

// CleanupOrphanedTaskReminders scans every task-reminder job and removes
// those whose task is gone or completed. Idempotent: a second consecutive
// call removes zero. Runs on the daily cadence as a safety net independent of
// per-operation cleanup.
func (s *Service) CleanupOrphanedTaskReminders(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupOrphansLocked(ctx)
}

func (s *Service) cleanupOrphansLocked(ctx context.Context) int {
	removed := 0
	for _, j := range s.jobs.List(func(j Job) bool { return j.Kind == KindTaskReminder }) {
		t, err := s.deps.Tasks.GetTask(ctx, j.TaskID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// fallthrough to removal below
		case err != nil:
			// Transient store trouble is not evidence of an orphan.
			s.log.Warn("orphan scan: task lookup failed",
				logx.String("task", j.TaskID), logx.Err(err))
			continue
		case !t.Completed:
			continue
		}
		s.jobs.Remove(func(x Job) bool { return x.ID == j.ID })
		removed++
		s.log.Info("orphaned reminder removed",
			logx.String("user", j.UserID), logx.String("task", j.TaskID), logx.Time("was_due", j.FireTime))
	}
	s.publish(eventbus.TypeOrphanScan, map[string]any{"removed": removed})
	return removed
}

// randomTimeInWindow picks a uniformly random minute inside [start, end] on
// the given day, never behind now. Returns ok=false when the window has
// already closed.
func (s *Service) randomTimeInWindow(now, day time.Time, startHHMM, endHHMM string, loc *time.Location) (time.Time, bool) {
	sh, sm, err := store.ParseHHMM(startHHMM)
	if err != nil {
		return time.Time{}, false
	}
	eh, em, err := store.ParseHHMM(endHHMM)
	if err != nil {
		return time.Time{}, false
	}

	lo := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc)
	hi := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc)
	if !hi.After(lo) {
		return time.Time{}, false
	}
	// Clamp the low edge so we never draw a fire time behind the clock.
	if floor := now.Add(time.Minute); floor.After(lo) {
		lo = floor
	}
	if !lo.Before(hi) {
		return time.Time{}, false
	}

	span := hi.Sub(lo)
	s.rngMu.Lock()
	off := time.Duration(s.rng.Int63n(int64(span)))
	s.rngMu.Unlock()

	fire := lo.Add(off).Truncate(time.Minute)
	if fire.Before(lo) {
		fire = lo
	}
	return fire, true
}

// nextDailyOccurrence advances a daily job's fire time past "after" using a
// cron daily schedule, which keeps the local HH:MM stable across DST shifts.
func (s *Service) nextDailyOccurrence(fire, after time.Time) time.Time {
	spec := fmt.Sprintf("%d %d * * *", fire.Minute(), fire.Hour())
	sched, err := s.parser.Parse(spec)
	if err != nil {
		// Unreachable for minute/hour taken from a valid time; fall back to
		// plain day arithmetic just in case.
		return fire.AddDate(0, 0, 1)
	}
	// Next interprets the spec in the time's own location; keep the job's.
	return sched.Next(after.In(fire.Location()))
}
