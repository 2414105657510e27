package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrNoWebhookURL is returned when neither the static URL nor the public
// domain variable is set.
var ErrNoWebhookURL = errors.New("no public webhook URL configured")

type Config struct {
	Server   ServerConfig
	Telegram TelegramConfig
	Webhook  WebhookConfig
	Refresh  RefreshConfig
	Dispatch DispatchConfig
	Data     DataConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type TelegramConfig struct {
	Token    string        `env:"TELEGRAM_BOT_TOKEN"`
	APIURL   string        `env:"TELEGRAM_API_URL"`
	Timeout  time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"15s"`
	Username string        `env:"TELEGRAM_BOT_USERNAME"`
}

type WebhookConfig struct {
	StaticURL    string `env:"RAILWAY_STATIC_URL"`
	PublicDomain string `env:"RAILWAY_PUBLIC_DOMAIN"`
	Path         string `env:"WEBHOOK_PATH" envDefault:"/webhook"`
	Secret       string `env:"WEBHOOK_SECRET"`
}

type RefreshConfig struct {
	Timezone       string        `env:"TIMEZONE" envDefault:"Europe/Moscow"`
	UpdateTimes    Schedule      `env:"UPDATE_TIMES" envDefault:"09:00,18:00"`
	Timeout        time.Duration `env:"REFRESH_TIMEOUT" envDefault:"2m"`
	WaitTimeout    time.Duration `env:"REFRESH_WAIT_TIMEOUT" envDefault:"5m"`
	UpdateCooldown time.Duration `env:"UPDATE_COOLDOWN" envDefault:"30s"`
}

type DispatchConfig struct {
	Workers   int `env:"DISPATCH_WORKERS" envDefault:"4"`
	QueueSize int `env:"DISPATCH_QUEUE_SIZE" envDefault:"100"`
}

type DataConfig struct {
	SourceURL   string `env:"DATA_SOURCE_URL"`
	SourceToken string `env:"DATA_SOURCE_TOKEN"`
}

type LoggingConfig struct {
	Level         string `env:"LOG_LEVEL" envDefault:"info"`
	File          string `env:"LOG_FILE"`
	MaxSizeMB     int    `env:"LOG_MAX_SIZE_MB" envDefault:"20"`
	RetentionDays int    `env:"LOG_RETENTION_DAYS" envDefault:"3"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Webhook.Path = normalizePath(cfg.Webhook.Path)
	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Location loads the configured schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Refresh.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Refresh.Timezone, err)
	}
	return loc, nil
}

// WebhookBaseURL resolves the externally reachable base URL: the static URL
// first, then https://<public domain>.
func (c *Config) WebhookBaseURL() (string, error) {
	if u := strings.TrimSpace(c.Webhook.StaticURL); u != "" {
		return strings.TrimRight(u, "/"), nil
	}
	if d := strings.TrimSpace(c.Webhook.PublicDomain); d != "" {
		return "https://" + strings.TrimRight(d, "/"), nil
	}
	return "", ErrNoWebhookURL
}

// WebhookURL is the full callback URL registered with the platform.
func (c *Config) WebhookURL() (string, error) {
	base, err := c.WebhookBaseURL()
	if err != nil {
		return "", err
	}
	return base + c.Webhook.Path, nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/webhook"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
