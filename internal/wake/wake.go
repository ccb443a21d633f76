// Package wake holds the optional platform wake-timer hook. Everything here
// is best effort: a failed wake registration is logged and never blocks
// scheduling.
package wake

import (
	"context"
	"time"

	logx "carebot/pkg/logx"
)

// Hook mirrors scheduler.WakeHook.
type Hook interface {
	ScheduleWake(ctx context.Context, at time.Time, meta string) error
}

type nop struct{}

func (nop) ScheduleWake(context.Context, time.Time, string) error { return nil }

// Nop returns a hook that does nothing; the default on platforms without a
// wake-timer facility.
func Nop() Hook { return nop{} }

// Logged wraps a hook so registrations and failures show up in the logs.
func Logged(h Hook, log logx.Logger) Hook {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &logged{inner: h, log: log}
}

type logged struct {
	inner Hook
	log   logx.Logger
}

func (l *logged) ScheduleWake(ctx context.Context, at time.Time, meta string) error {
	err := l.inner.ScheduleWake(ctx, at, meta)
	if err != nil {
		l.log.Warn("wake registration failed", logx.Time("at", at), logx.Err(err))
		return err
	}
	l.log.Debug("wake registered", logx.Time("at", at), logx.String("meta", meta))
	return nil
}
