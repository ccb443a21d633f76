package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrPastFireTime rejects one-shot reminders scheduled behind the clock
	// instead of silently creating an unfireable job.
	ErrPastFireTime = errors.New("fire time is in the past")

	// ErrTimeConflict means an equivalent job already fires within the
	// conflict window.
	ErrTimeConflict = errors.New("conflicting job within conflict window")
)

// ConfigError marks a per-unit configuration problem (bad timezone, invalid
// period list). The affected user/category is skipped and the reconciliation
// pass continues; one bad unit never aborts the cycle.
type ConfigError struct {
	UserID   string
	Category string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("config for user %s category %s: %v", e.UserID, e.Category, e.Err)
	}
	return fmt.Sprintf("config for user %s: %v", e.UserID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
