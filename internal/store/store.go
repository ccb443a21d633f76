package store

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "carebot/pkg/logx"
)

var (
	ErrNotFound = errors.New("not found")
	ErrDisabled = errors.New("storage disabled")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the full persistence API. The scheduler only consumes the narrow
// read interfaces declared in internal/scheduler; everything else is used by
// the app wiring and the command surface.
type Store interface {
	// Users
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Tasks
	UpsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListIncompleteTasks(ctx context.Context, userID string) ([]Task, error)
	CompleteTask(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error

	// Schedule configuration
	SetTimePeriods(ctx context.Context, userID, category string, ps []TimePeriod) error
	GetTimePeriods(ctx context.Context, userID, category string) ([]TimePeriod, error)
	GetTimezone(ctx context.Context, userID string) (string, error)

	// Backup writes a consistent snapshot of the database into dir and
	// returns the snapshot path.
	Backup(ctx context.Context, dir string) (string, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
