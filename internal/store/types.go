package store

import (
	"fmt"
	"strings"
	"time"
)

// Canonical layouts for the date/time strings stored and exchanged with the
// scheduler. Times of day are always "HH:MM"; dates are always "YYYY-MM-DD".
const (
	DateLayout = "2006-01-02"
	HHMMLayout = "15:04"
)

// AllDays is the sentinel period name meaning "every day of the week".
// A category's period list is either a single AllDays period or a set of
// explicitly named periods, never a mix.
const AllDays = "ALL"

// Priority orders tasks for reminder selection. Higher is more urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium", "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return PriorityMedium, fmt.Errorf("unknown priority %q", s)
	}
}

// User is a registered recipient of scheduled sends.
type User struct {
	ID       string
	Name     string
	Timezone string // IANA TZ, e.g. "Europe/Berlin"

	// Channel is the preferred delivery channel ("telegram" or "email").
	// The dispatch gateway falls back to the other configured channels when
	// the preferred one fails.
	Channel        string
	TelegramChatID int64
	Email          string
}

// ReminderPeriod is a window during which at most one task reminder may fire.
// Date is empty for recurring daily windows and set (DateLayout) for absolute
// one-day windows.
type ReminderPeriod struct {
	Date  string
	Start string // HH:MM
	End   string // HH:MM
}

// Key returns a stable identity for grouping equal periods across tasks.
func (p ReminderPeriod) Key() string {
	return p.Date + "|" + p.Start + "|" + p.End
}

// Task is read-only from the scheduler's perspective; its lifecycle is owned
// by the store's write API.
type Task struct {
	ID        string
	UserID    string
	Title     string
	Completed bool
	Priority  Priority

	DueDate string // DateLayout, empty when the task has no due date
	DueTime string // HH:MM, optional refinement of DueDate

	ReminderPeriods []ReminderPeriod

	CreatedAt time.Time
}

// TimePeriod is a named recurring window for a message/check-in category.
type TimePeriod struct {
	Name   string
	Active bool
	Days   []time.Weekday // ignored when Name == AllDays
	Start  string         // HH:MM
	End    string         // HH:MM
}

// AppliesOn reports whether the period covers the given weekday.
func (p TimePeriod) AppliesOn(d time.Weekday) bool {
	if p.Name == AllDays {
		return true
	}
	for _, pd := range p.Days {
		if pd == d {
			return true
		}
	}
	return false
}

// ValidatePeriods rejects a period list that mixes the AllDays sentinel with
// explicitly named periods. Such a list has no defined meaning; callers skip
// the category and log instead of guessing.
func ValidatePeriods(ps []TimePeriod) error {
	if len(ps) <= 1 {
		return nil
	}
	all := 0
	for _, p := range ps {
		if p.Name == AllDays {
			all++
		}
	}
	if all > 0 && all != len(ps) {
		return fmt.Errorf("period list mixes %q sentinel with named periods", AllDays)
	}
	if all > 1 {
		return fmt.Errorf("period list has %d %q sentinel entries, want at most one", all, AllDays)
	}
	return nil
}

// ParseHHMM parses an "HH:MM" time of day.
func ParseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse(HHMMLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseDate parses a "YYYY-MM-DD" date in the given location.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
