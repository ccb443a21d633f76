package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: Europe/Berlin
  daily_trigger: "00:30"
  categories: [wellness, hydration]
storage:
  driver: sqlite
  path: ./carebot.db
telegram:
  token: "123:abc"
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging %+v", cfg.Logging)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Fatalf("scheduler %+v", cfg.Scheduler)
	}
	if len(cfg.Scheduler.Categories) != 2 || cfg.Scheduler.Categories[1] != "hydration" {
		t.Fatalf("categories %v", cfg.Scheduler.Categories)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage %+v", cfg.Storage)
	}
	if cfg.Telegram == nil || cfg.Telegram.Token != "123:abc" {
		t.Fatalf("telegram %+v", cfg.Telegram)
	}
	if cfg.Email != nil {
		t.Fatalf("email should be absent, got %+v", cfg.Email)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json",
		`{"scheduler": {"enabled": true, "tick_interval": "10s"}, "storage": {"driver": "none", "path": ""}}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.TickInterval != "10s" {
		t.Fatalf("scheduler %+v", cfg.Scheduler)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
scheduler:
  enabled: true
  tick_intervall: "10s"
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"scheduler": {"enabled": true}} {"extra": 1}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("concatenated JSON accepted")
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
scheduler:
  enabled: true
`)
	if m.Get() != nil {
		t.Fatal("Get before Load returned a config")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestSubscribePublishDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second) // buffer full: the stale update is dropped

	select {
	case got := <-ch:
		if got != second {
			t.Fatal("subscriber received the stale config")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	m.Unsubscribe(ch) // second unsubscribe is a no-op
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", "  "); err != nil || d != 0 {
		t.Fatalf("blank: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got %v, %v", d, err)
	}
}
