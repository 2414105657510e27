package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScheduleEntry is a wall-clock refresh time in the configured timezone.
type ScheduleEntry struct {
	Hour   int
	Minute int
}

func (e ScheduleEntry) String() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

// UnmarshalText parses "HH:MM".
func (e *ScheduleEntry) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("schedule entry %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("schedule entry %q: hour must be 0-23", s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("schedule entry %q: minute must be 0-59", s)
	}
	e.Hour, e.Minute = hour, minute
	return nil
}

// Schedule is an ordered set of entries; duplicates collapse on parse.
type Schedule []ScheduleEntry

// UnmarshalText parses a comma separated list such as "09:00,18:00".
func (s *Schedule) UnmarshalText(text []byte) error {
	var entries []ScheduleEntry
	for _, part := range strings.Split(string(text), ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		var e ScheduleEntry
		if err := e.UnmarshalText([]byte(part)); err != nil {
			return err
		}
		entries = append(entries, e)
	}
	*s = NewSchedule(entries...)
	return nil
}

// NewSchedule sorts entries by time of day and drops duplicates.
func NewSchedule(entries ...ScheduleEntry) Schedule {
	seen := make(map[ScheduleEntry]struct{}, len(entries))
	out := make(Schedule, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out
}

func (s Schedule) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
