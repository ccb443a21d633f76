package config

// Config is the root configuration. Files may be YAML or JSON; both go
// through the same strict decoder (unknown fields are rejected).
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Dispatch  DispatchConfig  `json:"dispatch"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the reminder engine.
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "30s"
//   - daily_trigger: "00:05"
//   - categories: ["wellness"]
//   - retry_attempts: 3
//   - retry_delay: "5s"
//   - backup_every: "168h"
type SchedulerConfig struct {
	Enabled       bool     `json:"enabled"`
	Timezone      string   `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
	TickInterval  string   `json:"tick_interval,omitempty"`
	DailyTrigger  string   `json:"daily_trigger,omitempty"` // HH:MM local
	Categories    []string `json:"categories,omitempty"`
	RetryAttempts int      `json:"retry_attempts,omitempty"`
	RetryDelay    string   `json:"retry_delay,omitempty"`
	BackupEvery   string   `json:"backup_every,omitempty"`
	BackupDir     string   `json:"backup_dir,omitempty"`

	// WakeTimer arms a systemd wake timer for the next fire so a suspended
	// host wakes up in time. Linux with systemd only.
	WakeTimer bool `json:"wake_timer,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./carebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type DispatchConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
}
