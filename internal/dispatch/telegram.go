package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"carebot/internal/scheduler"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

type TelegramConfig struct {
	Token string

	// Offline skips the getMe handshake; used by tests.
	Offline bool
}

// Telegram sends via the Bot API. Outbound only: carebot's command surface
// runs elsewhere, this channel just delivers.
type Telegram struct {
	bot *tele.Bot
	log logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" && !cfg.Offline {
		return nil, errors.New("telegram token required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  nil,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, log: log}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, u store.User, d scheduler.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, body := composeText(d, u.Name)
	_, err := t.bot.Send(tele.ChatID(u.TelegramChatID), body, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	return err
}
