package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level ticketer configuration.
type Config struct {
	API      APIConfig      `json:"api"`
	Generate GenerateConfig `json:"generate"`
	Watch    *WatchConfig   `json:"watch,omitempty"`
	Notify   NotifyConfig   `json:"notify"`
	Status   StatusConfig   `json:"status"`
	DataDir  string         `json:"data_dir"`
}

// APIConfig holds settings for the ticket generation service.
type APIConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// GenerateConfig tunes the submit-and-poll cycle.
type GenerateConfig struct {
	Tickets             int `json:"tickets,omitempty"`               // default 20
	PollIntervalSeconds int `json:"poll_interval_seconds,omitempty"` // default 5
	MaxAttempts         int `json:"max_attempts,omitempty"`          // default 24
}

// WatchConfig holds settings for the transcript directory watcher.
type WatchConfig struct {
	Dir      string `json:"dir"`
	Schedule string `json:"schedule,omitempty"` // cron expression, default every minute
}

// NotifyConfig holds settings for outbound notifications.
type NotifyConfig struct {
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// StatusConfig holds settings for the daemon status server.
type StatusConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a minimal config from environment variables with TICKETER_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL: os.Getenv("TICKETER_API_URL"),
			Token:   os.Getenv("TICKETER_API_TOKEN"),
		},
		Generate: GenerateConfig{
			Tickets:             getenvInt("TICKETER_TICKETS", 0),
			PollIntervalSeconds: getenvInt("TICKETER_POLL_INTERVAL", 0),
			MaxAttempts:         getenvInt("TICKETER_MAX_ATTEMPTS", 0),
		},
		Status: StatusConfig{
			Host: getenv("TICKETER_STATUS_HOST", "0.0.0.0"),
			Port: getenvInt("TICKETER_STATUS_PORT", 8080),
			Key:  os.Getenv("TICKETER_STATUS_KEY"),
		},
		DataDir: getenv("TICKETER_DATA_DIR", "/data"),
	}

	if dir := os.Getenv("TICKETER_WATCH_DIR"); dir != "" {
		cfg.Watch = &WatchConfig{
			Dir:      dir,
			Schedule: os.Getenv("TICKETER_WATCH_SCHEDULE"),
		}
	}

	if token := os.Getenv("TICKETER_SLACK_BOT_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			BotToken: token,
			Channel:  os.Getenv("TICKETER_SLACK_CHANNEL"),
		}
	}
	if token := os.Getenv("TICKETER_TELEGRAM_TOKEN"); token != "" {
		chatID, err := strconv.ParseInt(os.Getenv("TICKETER_TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: TICKETER_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Notify.Telegram = &TelegramConfig{
			Token:  token,
			ChatID: chatID,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	}
	if c.API.Token == "" {
		errs = append(errs, "api.token is required")
	}

	if c.Generate.Tickets < 0 {
		errs = append(errs, "generate.tickets must not be negative")
	}
	if c.Generate.PollIntervalSeconds < 0 {
		errs = append(errs, "generate.poll_interval_seconds must not be negative")
	}
	if c.Generate.MaxAttempts < 0 {
		errs = append(errs, "generate.max_attempts must not be negative")
	}

	if c.Watch != nil && c.Watch.Dir == "" {
		errs = append(errs, "watch.dir is required")
	}

	if c.Notify.Slack != nil {
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required")
		}
		if c.Notify.Slack.Channel == "" {
			errs = append(errs, "notify.slack.channel is required")
		}
	}
	if c.Notify.Telegram != nil {
		if c.Notify.Telegram.Token == "" {
			errs = append(errs, "notify.telegram.token is required")
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, "notify.telegram.chat_id is required")
		}
	}

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
