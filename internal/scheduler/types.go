package scheduler

import (
	"context"
	"math/rand"
	"time"

	"carebot/internal/clock"
	"carebot/internal/store"
)

// Kind tags what a job sends when it fires.
type Kind int

const (
	KindMessage Kind = iota
	KindCheckin
	KindTaskReminder
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCheckin:
		return "checkin"
	case KindTaskReminder:
		return "task_reminder"
	default:
		return "unknown"
	}
}

// Recurrence says whether a job fires once or daily until cleaned up.
type Recurrence int

const (
	OneShot Recurrence = iota
	Daily
)

func (r Recurrence) String() string {
	if r == Daily {
		return "daily"
	}
	return "oneshot"
}

// Origin records who created a job. The daily pass rebuilds its own jobs from
// configuration each cycle; user-created jobs carry ad-hoc fire times that no
// rebuild could recreate, so only firing or explicit cleanup removes them.
type Origin int

const (
	OriginRebuild Origin = iota
	OriginUser
)

func (o Origin) String() string {
	if o == OriginUser {
		return "user"
	}
	return "rebuild"
}

// CategoryCheckin is the fixed schedule-config category for check-in prompts.
// Message categories are configurable; check-ins always live under this one.
const CategoryCheckin = "checkin"

// Job is a scheduled unit of work. It is owned exclusively by the job store:
// created during reconciliation (or via the lifecycle API), destroyed on
// firing (OneShot) or on explicit cleanup.
type Job struct {
	ID     string
	UserID string
	Kind   Kind

	// Category is set for message/check-in jobs, TaskID for task reminders.
	Category string
	TaskID   string

	FireTime   time.Time
	Recurrence Recurrence
	Origin     Origin
}

// Delivery is the copied-out payload handed to the dispatch gateway.
// No job store lock is held while it is being sent.
type Delivery struct {
	JobID     string
	UserID    string
	Kind      Kind
	Category  string
	TaskID    string
	TaskTitle string
}

// Dispatcher sends one delivery synchronously. Implementations own their own
// per-send timeout; the scheduler only bounds the retry count.
type Dispatcher interface {
	Send(ctx context.Context, d Delivery) error
}

// TaskSource is the read-only view of the task store.
type TaskSource interface {
	GetTask(ctx context.Context, id string) (store.Task, error)
	ListIncompleteTasks(ctx context.Context, userID string) ([]store.Task, error)
}

// ScheduleSource supplies per-user schedule configuration.
type ScheduleSource interface {
	GetTimePeriods(ctx context.Context, userID, category string) ([]store.TimePeriod, error)
	GetTimezone(ctx context.Context, userID string) (string, error)
}

// UserSource enumerates the user population for reconciliation.
type UserSource interface {
	ListUsers(ctx context.Context) ([]store.User, error)
}

// WakeHook is an optional platform wake-timer. Best effort: failures are
// logged and never block scheduling.
type WakeHook interface {
	ScheduleWake(ctx context.Context, at time.Time, meta string) error
}

// BackupFunc runs the weekly backup. Delegated; any error is logged only.
type BackupFunc func(ctx context.Context) error

// Config controls the scheduler service.
type Config struct {
	Enabled bool

	// Timezone is the service timezone and the fallback for users without
	// one. IANA name, e.g. "Europe/Berlin".
	Timezone string

	// TickInterval is the loop cadence. Jobs are scheduled at minute
	// granularity, so anything at or below one minute is fine.
	TickInterval time.Duration

	// DailyTrigger is the local HH:MM at which the full reconciliation pass
	// (rebuild + orphan scan + backup check) runs.
	DailyTrigger string

	// Message categories rebuilt for every user each day. Check-ins are
	// always rebuilt under CategoryCheckin in addition to these.
	Categories []string

	RetryAttempts int           // dispatch attempts per firing, default 3
	RetryDelay    time.Duration // fixed delay between attempts, default 5s

	BackupEvery time.Duration // default 7 days; 0 disables the backup check
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.DailyTrigger == "" {
		c.DailyTrigger = "00:05"
	}
	if len(c.Categories) == 0 {
		c.Categories = []string{"wellness"}
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.BackupEvery == 0 {
		c.BackupEvery = 7 * 24 * time.Hour
	}
	return c
}

// Deps are the collaborators injected into the service. Clock and RNG default
// to the system clock and a time-seeded RNG; tests pin both.
type Deps struct {
	Tasks     TaskSource
	Schedules ScheduleSource
	Users     UserSource
	Dispatch  Dispatcher

	Wake   WakeHook   // optional
	Backup BackupFunc // optional

	Clock clock.Clock
	RNG   *rand.Rand
}

// Snapshot is a point-in-time diagnostic view (for /status style output).
type Snapshot struct {
	Running    bool
	Jobs       int
	NextDaily  time.Time
	NextFire   time.Time
	LastBackup time.Time
}
