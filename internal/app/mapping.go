package app

import (
	"errors"

	"carebot/internal/config"
	"carebot/internal/dispatch"
	"carebot/internal/scheduler"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

// Mapping keeps the config file shape (strings for durations) out of the
// service packages.

func mapStorageConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationField("scheduler.tick_interval", cfg.Scheduler.TickInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	retryDelay, err := config.ParseDurationField("scheduler.retry_delay", cfg.Scheduler.RetryDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	backupEvery, err := config.ParseDurationField("scheduler.backup_every", cfg.Scheduler.BackupEvery)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		Timezone:      cfg.Scheduler.Timezone,
		TickInterval:  tick,
		DailyTrigger:  cfg.Scheduler.DailyTrigger,
		Categories:    cfg.Scheduler.Categories,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    retryDelay,
		BackupEvery:   backupEvery,
	}, nil
}

func buildGateway(cfg *config.Config, st store.Store, log logx.Logger) (*dispatch.Gateway, error) {
	sendTimeout, err := config.ParseDurationField("dispatch.send_timeout", cfg.Dispatch.SendTimeout)
	if err != nil {
		return nil, err
	}

	var channels []dispatch.Channel
	if cfg.Telegram != nil {
		tg, err := dispatch.NewTelegram(dispatch.TelegramConfig{Token: cfg.Telegram.Token},
			log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	if cfg.Email != nil {
		em, err := dispatch.NewEmail(dispatch.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, log.With(logx.String("comp", "email")))
		if err != nil {
			return nil, err
		}
		channels = append(channels, em)
	}
	if len(channels) == 0 {
		return nil, errors.New("no delivery channel configured (telegram or email)")
	}

	return dispatch.New(dispatch.Config{
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: sendTimeout,
	}, st, log.With(logx.String("comp", "dispatch")), channels...), nil
}
