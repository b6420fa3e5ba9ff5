// Package config loads the tta configuration from ~/.ttt/anomalies.yaml and
// the environment.
package config

import "time"

// Config is the root configuration. Priority: ENV > YAML > env-default tags.
type Config struct {
	// DefaultUser owns entries that carry no user id, which is every entry ttt
	// itself writes.
	DefaultUser string           `yaml:"default_user" env:"TTA_DEFAULT_USER" env-default:"me"`
	Engine      EngineConfig     `yaml:"engine"`
	Rules       RulesConfig      `yaml:"rules"`
	Calendar    CalendarConfig   `yaml:"calendar"`
	Categories  CategoriesConfig `yaml:"categories"`
	State       StateConfig      `yaml:"state"`
	Remote      RemoteConfig     `yaml:"remote"`
	Log         LogConfig        `yaml:"log"`
}

// EngineConfig controls scheduling and caching of detection runs.
type EngineConfig struct {
	Debounce                     time.Duration `yaml:"debounce"                      env:"TTA_ENGINE_DEBOUNCE"                      env-default:"3s"`
	DisableCache                 bool          `yaml:"disable_cache"                 env:"TTA_ENGINE_DISABLE_CACHE"`
	DisablePerformanceMonitoring bool          `yaml:"disable_performance_monitoring" env:"TTA_ENGINE_DISABLE_PERFORMANCE_MONITORING"`
	LookbackDays                 int           `yaml:"lookback_days"                 env:"TTA_ENGINE_LOOKBACK_DAYS"                 env-default:"30"`
	Workers                      int           `yaml:"workers"                       env:"TTA_ENGINE_WORKERS"                       env-default:"4"`
	ChunkSize                    int           `yaml:"chunk_size"                    env:"TTA_ENGINE_CHUNK_SIZE"                    env-default:"5000"`
	Timezone                     string        `yaml:"timezone"                      env:"TTA_ENGINE_TIMEZONE"                      env-default:"Europe/Berlin"`
	// Tick schedules a run periodically in watch mode so running entries age.
	Tick time.Duration `yaml:"tick" env:"TTA_ENGINE_TICK" env-default:"5m"`
}

// RulesConfig holds the classifier thresholds.
type RulesConfig struct {
	ForgotToStopHours     float64 `yaml:"forgot_to_stop_hours"    env:"TTA_RULES_FORGOT_TO_STOP_HOURS"    env-default:"12"`
	ShootExcessHours      float64 `yaml:"shoot_excess_hours"      env:"TTA_RULES_SHOOT_EXCESS_HOURS"      env-default:"15"`
	RegularExcessHours    float64 `yaml:"regular_excess_hours"    env:"TTA_RULES_REGULAR_EXCESS_HOURS"    env-default:"9"`
	UnderPerformanceRatio float64 `yaml:"under_performance_ratio" env:"TTA_RULES_UNDER_PERFORMANCE_RATIO" env-default:"0.5"`
	// OvernightStopHour flags finished entries ending on a later day before
	// this hour; -1 disables the check.
	OvernightStopHour int `yaml:"overnight_stop_hour" env:"TTA_RULES_OVERNIGHT_STOP_HOUR" env-default:"9"`
}

// CalendarConfig selects the public holiday calendar.
type CalendarConfig struct {
	DisableHolidays bool `yaml:"disable_holidays" env:"TTA_CALENDAR_DISABLE_HOLIDAYS"`
	// Region is a German state code such as "BY"; empty means nationwide only.
	Region string `yaml:"region" env:"TTA_CALENDAR_REGION"`
}

// CategoriesConfig decides which days count as shoot days.
type CategoriesConfig struct {
	ShootKeywords []string `yaml:"shoot_keywords" env:"TTA_SHOOT_KEYWORDS" env-separator:"," env-default:"dreh,produktion,shoot"`
}

// State backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// StateConfig selects where anomaly dispositions are persisted.
type StateConfig struct {
	Backend string `yaml:"backend" env:"TTA_STATE_BACKEND" env-default:"json"`
	// Path overrides the backend's default location under ~/.ttt/anomalies.
	Path string `yaml:"path" env:"TTA_STATE_PATH"`
}

// RemoteConfig configures the optional remote anomaly mirror.
type RemoteConfig struct {
	BaseURL           string        `yaml:"base_url"            env:"TTA_REMOTE_BASE_URL"`
	ClientID          string        `yaml:"client_id"           env:"TTA_REMOTE_CLIENT_ID"`
	DeviceAuthURL     string        `yaml:"device_auth_url"     env:"TTA_REMOTE_DEVICE_AUTH_URL"`
	TokenURL          string        `yaml:"token_url"           env:"TTA_REMOTE_TOKEN_URL"`
	Scopes            []string      `yaml:"scopes"              env:"TTA_REMOTE_SCOPES"              env-separator:","`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"TTA_REMOTE_REQUESTS_PER_SECOND" env-default:"5"`
	Timeout           time.Duration `yaml:"timeout"             env:"TTA_REMOTE_TIMEOUT"             env-default:"30s"`
}

// Enabled reports whether a remote endpoint is configured.
func (r RemoteConfig) Enabled() bool {
	return r.BaseURL != ""
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"  env:"TTA_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"TTA_LOG_FORMAT" env-default:"text"`
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Engine.Timezone)
}
