// KPI Bot - Telegram bot serving cached KPI data
// License: MIT
//
// Copyright (c) 2026 KPI Bot contributors

package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"kpibot/pkg/logger"
)

const version = "0.1.0"

var debugMode bool

func main() {
	for _, arg := range os.Args {
		if arg == "--debug" || arg == "-d" {
			debugMode = true
			logger.SetLevel(logger.DEBUG)
			break
		}
	}

	os.Args = normalizeCLIArgs(os.Args)

	command := "serve"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		serveCmd()
	case "webhook":
		webhookCmd()
	case "schedule":
		scheduleCmd()
	case "version", "--version", "-v":
		fmt.Printf("kpibot v%s\n", version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("kpibot v%s\n\n", version)
	fmt.Println("Usage: kpibot [command] [--debug]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                 Run the webhook server and refresh scheduler (default)")
	fmt.Println("  webhook set <url>     Register the webhook URL by hand")
	fmt.Println("  webhook delete        Remove the webhook registration")
	fmt.Println("  schedule              Print the next scheduled refresh times")
	fmt.Println("  version               Show version")
	fmt.Println()
	fmt.Println("Configuration is read from the environment (PORT, TELEGRAM_BOT_TOKEN, UPDATE_TIMES, ...).")
}
