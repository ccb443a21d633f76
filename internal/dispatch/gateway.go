package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"carebot/internal/scheduler"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

var ErrNoChannel = errors.New("no usable delivery channel for user")

// UserSource resolves delivery targets.
type UserSource interface {
	GetUser(ctx context.Context, id string) (store.User, error)
}

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, u store.User, d scheduler.Delivery) error
}

type Config struct {
	RatePerSec  int           // per-channel token bucket, default 3
	SendTimeout time.Duration // per-attempt timeout, default 30s
}

// Gateway multiplexes deliveries over the registered channels.
// It satisfies scheduler.Dispatcher.
type Gateway struct {
	log      logx.Logger
	cfg      Config
	users    UserSource
	channels []Channel
	limiters map[string]*rate.Limiter
}

func New(cfg Config, users UserSource, log logx.Logger, channels ...Channel) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	limiters := make(map[string]*rate.Limiter, len(channels))
	for _, ch := range channels {
		// Burst = rate per sec, so short spikes don't block too hard.
		limiters[ch.Name()] = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return &Gateway{log: log, cfg: cfg, users: users, channels: channels, limiters: limiters}
}

// Send delivers synchronously: preferred channel first, then the remaining
// configured ones. The first success wins; otherwise the collected errors
// come back to the scheduler for its retry decision.
func (g *Gateway) Send(ctx context.Context, d scheduler.Delivery) error {
	u, err := g.users.GetUser(ctx, d.UserID)
	if err != nil {
		return fmt.Errorf("resolve user %s: %w", d.UserID, err)
	}

	tried := 0
	var errs []error
	for _, ch := range g.ordered(u.Channel) {
		if !usable(ch.Name(), u) {
			continue
		}
		tried++

		if lim := g.limiters[ch.Name()]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		sctx, cancel := context.WithTimeout(ctx, g.cfg.SendTimeout)
		err := ch.Send(sctx, u, d)
		cancel()
		if err == nil {
			g.log.Debug("delivered",
				logx.String("channel", ch.Name()),
				logx.String("user", u.ID),
				logx.String("kind", d.Kind.String()))
			return nil
		}
		g.log.Warn("channel send failed",
			logx.String("channel", ch.Name()), logx.String("user", u.ID), logx.Err(err))
		errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
	}

	if tried == 0 {
		return fmt.Errorf("%w: user %s", ErrNoChannel, u.ID)
	}
	return errors.Join(errs...)
}

// ordered puts the preferred channel first, keeping registration order for
// the rest.
func (g *Gateway) ordered(preferred string) []Channel {
	out := make([]Channel, 0, len(g.channels))
	for _, ch := range g.channels {
		if ch.Name() == preferred {
			out = append(out, ch)
		}
	}
	for _, ch := range g.channels {
		if ch.Name() != preferred {
			out = append(out, ch)
		}
	}
	return out
}

// usable reports whether the user has the address the channel needs.
func usable(channel string, u store.User) bool {
	switch channel {
	case "telegram":
		return u.TelegramChatID != 0
	case "email":
		return u.Email != ""
	default:
		return true
	}
}

// composeText renders the default wording for a delivery. Exact phrasing is
// deliberately plain; templates can layer on top later.
func composeText(d scheduler.Delivery, name string) (subject, body string) {
	who := name
	if who == "" {
		who = "there"
	}
	switch d.Kind {
	case scheduler.KindCheckin:
		return "Check-in", fmt.Sprintf("Hi %s, how are you doing right now?", who)
	case scheduler.KindTaskReminder:
		title := d.TaskTitle
		if title == "" {
			title = "one of your tasks"
		}
		return "Task reminder", fmt.Sprintf("Hi %s, a gentle nudge about: %s", who, title)
	default:
		return "A thought for you", fmt.Sprintf("Hi %s, taking a moment for yourself counts too.", who)
	}
}
