package main

import (
	"context"
	"fmt"
	"os"
	"time"
)

func webhookCmd() {
	args := os.Args[2:]
	if len(args) == 0 {
		webhookHelp()
		os.Exit(1)
	}

	cfg := loadConfig()
	client := newTelegramClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "set":
		url := ""
		if len(args) > 1 {
			url = args[1]
		} else {
			resolved, err := cfg.WebhookURL()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			url = resolved
		}
		if err := client.SetWebhook(ctx, url, cfg.Webhook.Secret); err != nil {
			fmt.Printf("Error setting webhook: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Webhook set to %s\n", url)
	case "delete":
		if err := client.DeleteWebhook(ctx); err != nil {
			fmt.Printf("Error deleting webhook: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Webhook deleted")
	default:
		fmt.Printf("Unknown webhook command: %s\n", args[0])
		webhookHelp()
		os.Exit(1)
	}
}

func webhookHelp() {
	fmt.Println("Usage: kpibot webhook set [url]")
	fmt.Println("       kpibot webhook delete")
	fmt.Println()
	fmt.Println("Without a url, set resolves it from RAILWAY_STATIC_URL or RAILWAY_PUBLIC_DOMAIN plus WEBHOOK_PATH.")
}
