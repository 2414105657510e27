package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"kpibot/pkg/config"
	"kpibot/pkg/schedule"
)

func scheduleCmd() {
	n := 5
	if len(os.Args) > 2 {
		v, err := strconv.Atoi(os.Args[2])
		if err != nil || v <= 0 {
			fmt.Println("Usage: kpibot schedule [count]")
			os.Exit(1)
		}
		n = v
	}

	// Token and webhook settings are irrelevant here, so no Validate.
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	sched, err := schedule.New(nil, cfg.Refresh.UpdateTimes, loc)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Refresh times: %s (%s)\n", cfg.Refresh.UpdateTimes, loc)
	for _, t := range sched.Upcoming(time.Now(), n) {
		fmt.Printf("  %s\n", t.Format("Mon 2006-01-02 15:04 MST"))
	}
}
