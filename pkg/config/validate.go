package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"kpibot/pkg/logger"
)

var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// Validate returns configuration problems found in cfg.
// It does not mutate cfg.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_BOT_TOKEN is required"))
	}
	if cfg.Telegram.APIURL != "" {
		errs = append(errs, validateURL("TELEGRAM_API_URL", cfg.Telegram.APIURL)...)
	}
	if cfg.Telegram.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("PLATFORM_TIMEOUT must be > 0"))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be in [0,65535]"))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0"))
	}

	if cfg.Webhook.StaticURL != "" {
		errs = append(errs, validateURL("RAILWAY_STATIC_URL", cfg.Webhook.StaticURL)...)
	}
	if strings.Contains(cfg.Webhook.PublicDomain, "://") {
		errs = append(errs, fmt.Errorf("RAILWAY_PUBLIC_DOMAIN must be a bare host name"))
	}
	if cfg.Webhook.Secret != "" && !webhookSecretPattern.MatchString(cfg.Webhook.Secret) {
		errs = append(errs, fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and -"))
	}

	if _, err := time.LoadLocation(cfg.Refresh.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q is not a known IANA zone", cfg.Refresh.Timezone))
	}
	if len(cfg.Refresh.UpdateTimes) == 0 {
		errs = append(errs, fmt.Errorf("UPDATE_TIMES must list at least one HH:MM entry"))
	}
	if cfg.Refresh.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_TIMEOUT must be > 0"))
	}
	if cfg.Refresh.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_WAIT_TIMEOUT must be > 0"))
	}
	if cfg.Refresh.UpdateCooldown < 0 {
		errs = append(errs, fmt.Errorf("UPDATE_COOLDOWN must be >= 0"))
	}

	if cfg.Dispatch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_WORKERS must be > 0"))
	}
	if cfg.Dispatch.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_QUEUE_SIZE must be > 0"))
	}

	if cfg.Data.SourceURL != "" {
		errs = append(errs, validateURL("DATA_SOURCE_URL", cfg.Data.SourceURL)...)
	}

	if _, err := logger.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errs
}

func validateURL(name, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", name, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("%s must use http or https", name)}
	}
	if u.Host == "" {
		return []error{fmt.Errorf("%s must include a host", name)}
	}
	return nil
}
