package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kpibot/pkg/app"
	"kpibot/pkg/datamanager"
	"kpibot/pkg/logger"
)

func serveCmd() {
	cfg := loadConfig()
	client := newTelegramClient(cfg)
	if cfg.Telegram.Username == "" {
		name, err := client.Username(context.Background())
		if err != nil {
			logger.WarnCF("main", "Bot username unknown, accepting commands for any @mention", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
		cfg.Telegram.Username = name
	}
	dm := datamanager.NewHTTPManager(cfg.Data.SourceURL,
		datamanager.NewSourceClient(context.Background(), cfg.Data.SourceToken, cfg.Refresh.Timeout))
	if cfg.Data.SourceURL == "" {
		logger.WarnC("main", "DATA_SOURCE_URL is not set, refreshes will fail")
	}

	a, err := app.New(cfg, client, dm)
	if err != nil {
		fmt.Printf("Error initializing app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-a.Ready():
			fmt.Printf("✓ Serving on %s (webhook path %s)\n", a.Addr(), cfg.Webhook.Path)
			fmt.Println("Press Ctrl+C to stop.")
		case <-ctx.Done():
		}
	}()

	if err := a.Run(ctx); err != nil {
		logger.ErrorCF("main", "Service stopped with error", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Stopped")
}
