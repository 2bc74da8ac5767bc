package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJSON = `{
  "api": {
    "base_url": "https://tickets.example.com",
    "token": "secret-token"
  },
  "generate": {
    "tickets": 10,
    "poll_interval_seconds": 2,
    "max_attempts": 30
  },
  "watch": {
    "dir": "/transcripts",
    "schedule": "*/5 * * * *"
  },
  "notify": {
    "slack": {
      "bot_token": "xoxb-test",
      "channel": "#tickets"
    },
    "telegram": {
      "token": "123456:ABC",
      "chat_id": 42
    }
  },
  "status": {
    "host": "0.0.0.0",
    "port": 8080,
    "api_key": "status-key"
  },
  "data_dir": "/tmp/ticketer-test"
}`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(validJSON), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.BaseURL != "https://tickets.example.com" {
		t.Errorf("api.base_url = %q", cfg.API.BaseURL)
	}
	if cfg.Generate.Tickets != 10 || cfg.Generate.PollIntervalSeconds != 2 || cfg.Generate.MaxAttempts != 30 {
		t.Errorf("generate = %+v", cfg.Generate)
	}
	if cfg.Watch == nil || cfg.Watch.Dir != "/transcripts" {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Notify.Slack == nil || cfg.Notify.Slack.Channel != "#tickets" {
		t.Errorf("slack = %+v", cfg.Notify.Slack)
	}
	if cfg.Notify.Telegram == nil || cfg.Notify.Telegram.ChatID != 42 {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Status.Port != 8080 || cfg.Status.Key != "status-key" {
		t.Errorf("status = %+v", cfg.Status)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{
		Notify: NotifyConfig{
			Slack:    &SlackConfig{},
			Telegram: &TelegramConfig{Token: "123:ABC"},
		},
		Watch: &WatchConfig{},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"api.base_url is required",
		"api.token is required",
		"watch.dir is required",
		"notify.slack.bot_token is required",
		"notify.slack.channel is required",
		"notify.telegram.chat_id is required",
		"data_dir is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in: %s", want, msg)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TICKETER_API_URL", "https://env.example.com")
	t.Setenv("TICKETER_API_TOKEN", "env-token")
	t.Setenv("TICKETER_TICKETS", "15")
	t.Setenv("TICKETER_WATCH_DIR", "/env/transcripts")
	t.Setenv("TICKETER_TELEGRAM_TOKEN", "999:XYZ")
	t.Setenv("TICKETER_TELEGRAM_CHAT_ID", "-1001")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("api.base_url = %q", cfg.API.BaseURL)
	}
	if cfg.Generate.Tickets != 15 {
		t.Errorf("tickets = %d", cfg.Generate.Tickets)
	}
	if cfg.Watch == nil || cfg.Watch.Dir != "/env/transcripts" {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.Notify.Telegram == nil || cfg.Notify.Telegram.ChatID != -1001 {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.DataDir != "/data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
}

func TestLoadFromEnvBadChatID(t *testing.T) {
	t.Setenv("TICKETER_API_URL", "https://env.example.com")
	t.Setenv("TICKETER_API_TOKEN", "env-token")
	t.Setenv("TICKETER_TELEGRAM_TOKEN", "999:XYZ")
	t.Setenv("TICKETER_TELEGRAM_CHAT_ID", "not-a-number")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for bad chat id")
	}
}
