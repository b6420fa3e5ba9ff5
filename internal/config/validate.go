package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/holiday"
)

// Validate checks ranges and enumerations. Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DefaultUser) == "" {
		return fmt.Errorf("default_user must not be empty")
	}
	if err := c.Engine.validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Rules.validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if r := strings.ToUpper(c.Calendar.Region); r != "" && !slices.Contains(holiday.Regions, r) {
		return fmt.Errorf("calendar: unknown region %q", c.Calendar.Region)
	}
	if c.State.Backend != BackendJSON && c.State.Backend != BackendSQLite {
		return fmt.Errorf("state: backend must be %q or %q (got %q)", BackendJSON, BackendSQLite, c.State.Backend)
	}
	if c.Remote.RequestsPerSecond <= 0 {
		return fmt.Errorf("remote: requests_per_second must be > 0 (got %v)", c.Remote.RequestsPerSecond)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log: format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.Debounce <= 0 {
		return fmt.Errorf("debounce must be > 0 (got %v)", e.Debounce)
	}
	if e.LookbackDays < 1 {
		return fmt.Errorf("lookback_days must be >= 1 (got %d)", e.LookbackDays)
	}
	if e.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", e.Workers)
	}
	if e.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be >= 1 (got %d)", e.ChunkSize)
	}
	if e.Tick <= 0 {
		return fmt.Errorf("tick must be > 0 (got %v)", e.Tick)
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

func (r *RulesConfig) validate() error {
	if r.ForgotToStopHours <= 0 {
		return fmt.Errorf("forgot_to_stop_hours must be > 0 (got %v)", r.ForgotToStopHours)
	}
	if r.ShootExcessHours <= 0 || r.RegularExcessHours <= 0 {
		return fmt.Errorf("excess hours must be > 0")
	}
	if r.UnderPerformanceRatio <= 0 || r.UnderPerformanceRatio > 1 {
		return fmt.Errorf("under_performance_ratio must be in (0, 1] (got %v)", r.UnderPerformanceRatio)
	}
	if r.OvernightStopHour < -1 || r.OvernightStopHour > 23 {
		return fmt.Errorf("overnight_stop_hour must be -1 or 0..23 (got %d)", r.OvernightStopHour)
	}
	return nil
}
