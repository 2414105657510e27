package main

import (
	"fmt"
	"net/http"
	"os"

	"kpibot/pkg/config"
	"kpibot/pkg/logger"
	"kpibot/pkg/platform"
)

func normalizeCLIArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := []string{args[0]}
	for _, arg := range args[1:] {
		if arg == "--debug" || arg == "-d" {
			continue
		}
		normalized = append(normalized, arg)
	}
	return normalized
}

// loadConfig reads and validates the environment, exiting on any problem.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		fmt.Println("Invalid configuration:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}
	configureLogging(cfg)
	return cfg
}

func configureLogging(cfg *config.Config) {
	if !debugMode {
		if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
	}
	if cfg.Logging.File == "" {
		return
	}
	if err := logger.EnableFileLogging(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.RetentionDays); err != nil {
		fmt.Printf("Warning: failed to enable file logging: %v\n", err)
	}
}

func newTelegramClient(cfg *config.Config) *platform.Telegram {
	client, err := platform.NewTelegram(cfg.Telegram.Token, platform.TelegramOptions{
		APIURL:     cfg.Telegram.APIURL,
		Timeout:    cfg.Telegram.Timeout,
		HTTPClient: &http.Client{Timeout: cfg.Telegram.Timeout},
	})
	if err != nil {
		fmt.Printf("Error creating Telegram client: %v\n", err)
		os.Exit(1)
	}
	return client
}
