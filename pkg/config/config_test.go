package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.Equal(t, "Europe/Moscow", cfg.Refresh.Timezone)
	assert.Equal(t, Schedule{{9, 0}, {18, 0}}, cfg.Refresh.UpdateTimes)
	assert.Equal(t, "/webhook", cfg.Webhook.Path)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.Timeout)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
}

func TestLoadFromOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(map[string]string{
		"PORT":         "9090",
		"UPDATE_TIMES": "18:30, 07:05,18:30",
		"TIMEZONE":     "UTC",
		"WEBHOOK_PATH": "tg",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, Schedule{{7, 5}, {18, 30}}, cfg.Refresh.UpdateTimes)
	assert.Equal(t, "07:05,18:30", cfg.Refresh.UpdateTimes.String())
	assert.Equal(t, "/tg", cfg.Webhook.Path)
}

func TestLoadFromRejectsBadScheduleEntry(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"24:00", "9", "09:60", "aa:bb"} {
		_, err := LoadFrom(map[string]string{"UPDATE_TIMES": raw})
		assert.Error(t, err, raw)
	}
}

func TestWebhookURLResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vars    map[string]string
		want    string
		wantErr error
	}{
		{
			name: "static url wins",
			vars: map[string]string{"RAILWAY_STATIC_URL": "https://bot.example.com/", "RAILWAY_PUBLIC_DOMAIN": "other.up.railway.app"},
			want: "https://bot.example.com/webhook",
		},
		{
			name: "public domain fallback",
			vars: map[string]string{"RAILWAY_PUBLIC_DOMAIN": "kpi.up.railway.app"},
			want: "https://kpi.up.railway.app/webhook",
		},
		{
			name:    "nothing configured",
			vars:    map[string]string{},
			wantErr: ErrNoWebhookURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(tt.vars)
			require.NoError(t, err)

			got, err := cfg.WebhookURL()
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc"})
	require.NoError(t, err)
	assert.Empty(t, Validate(cfg))

	bad, err := LoadFrom(map[string]string{
		"TIMEZONE":         "Mars/Olympus",
		"DISPATCH_WORKERS": "0",
		"WEBHOOK_SECRET":   "not allowed!",
		"LOG_LEVEL":        "loud",
	})
	require.NoError(t, err)

	errs := Validate(bad)
	var joined []string
	for _, e := range errs {
		joined = append(joined, e.Error())
	}
	all := strings.Join(joined, "\n")
	assert.Contains(t, all, "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, all, "TIMEZONE")
	assert.Contains(t, all, "DISPATCH_WORKERS")
	assert.Contains(t, all, "WEBHOOK_SECRET")
	assert.Contains(t, all, "LOG_LEVEL")
}

func TestNewScheduleSortsAndDedupes(t *testing.T) {
	t.Parallel()

	s := NewSchedule(ScheduleEntry{18, 0}, ScheduleEntry{9, 0}, ScheduleEntry{18, 0})
	assert.Equal(t, Schedule{{9, 0}, {18, 0}}, s)
}
