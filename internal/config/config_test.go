package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/config"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anomalies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWritesTemplateOnFirstRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TTT_HOME", home)
	t.Setenv("TTA_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, config.FileName))

	assert.Equal(t, "me", cfg.DefaultUser)
	assert.Equal(t, 3*time.Second, cfg.Engine.Debounce)
	assert.False(t, cfg.Engine.DisableCache)
	assert.Equal(t, 30, cfg.Engine.LookbackDays)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 5000, cfg.Engine.ChunkSize)
	assert.Equal(t, "Europe/Berlin", cfg.Engine.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Engine.Tick)
	assert.Equal(t, 12.0, cfg.Rules.ForgotToStopHours)
	assert.Equal(t, 0.5, cfg.Rules.UnderPerformanceRatio)
	assert.Equal(t, 9, cfg.Rules.OvernightStopHour)
	assert.Equal(t, []string{"dreh", "produktion", "shoot"}, cfg.Categories.ShootKeywords)
	assert.Equal(t, config.BackendJSON, cfg.State.Backend)
	assert.False(t, cfg.Remote.Enabled())
	assert.Equal(t, "info", cfg.Log.Level)

	// Second load reads the file that was just written.
	again, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	t.Setenv("TTA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadFileOverridesAndEnv(t *testing.T) {
	path := writeYAML(t, `
default_user: alice
engine:
  lookback_days: 14
  timezone: UTC
rules:
  regular_excess_hours: 10
calendar:
  region: BY
state:
  backend: sqlite
`)
	t.Setenv("TTA_ENGINE_WORKERS", "8")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.DefaultUser)
	assert.Equal(t, 14, cfg.Engine.LookbackDays)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 10.0, cfg.Rules.RegularExcessHours)
	assert.Equal(t, 15.0, cfg.Rules.ShootExcessHours)
	assert.Equal(t, "BY", cfg.Calendar.Region)
	assert.Equal(t, config.BackendSQLite, cfg.State.Backend)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad backend", "state:\n  backend: postgres\n"},
		{"bad region", "calendar:\n  region: XX\n"},
		{"bad ratio", "rules:\n  under_performance_ratio: 1.5\n"},
		{"bad overnight hour", "rules:\n  overnight_stop_hour: 24\n"},
		{"bad timezone", "engine:\n  timezone: Mars/Olympus\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad log level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFile(writeYAML(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
