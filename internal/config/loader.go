package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/Tiliavir/ttt-anomalies/internal/storage"
)

// FileName is the config file name inside the ttt home directory.
const FileName = "anomalies.yaml"

// configTemplate is the annotated config written on first run.
const configTemplate = `# tta configuration – ~/.ttt/anomalies.yaml
#
# All settings are optional; the values below are the built-in defaults.
# Every key can be overridden by the TTA_* environment variable of the same
# name, e.g. TTA_ENGINE_LOOKBACK_DAYS=14.

# Owner of entries without a user id (entries written by ttt itself).
default_user: me

engine:
  # Quiet window before a run after the last data change.
  debounce: 3s
  # Reclassify every day on every run instead of reusing unchanged days.
  disable_cache: false
  disable_performance_monitoring: false
  # Days before today that are checked.
  lookback_days: 30
  workers: 4
  # Entries aggregated between cancellation checks.
  chunk_size: 5000
  # IANA time zone deciding which calendar day an entry belongs to.
  timezone: Europe/Berlin
  # Periodic recheck in watch mode, so running timers are noticed.
  tick: 5m

rules:
  forgot_to_stop_hours: 12
  shoot_excess_hours: 15
  regular_excess_hours: 9
  # Days below this share of the target are flagged as under-performance.
  under_performance_ratio: 0.5
  # Entries ending on a later day before this hour count as forgotten timers.
  # Use -1 to disable.
  overnight_stop_hour: 9

calendar:
  disable_holidays: false
  # German state code (BW, BY, BE, BB, HB, HH, HE, MV, NI, NW, RP, SL, SN,
  # ST, SH, TH). Empty = nationwide holidays only.
  region: ""

categories:
  # Days with an entry mentioning any of these words count as shoot days.
  shoot_keywords: [dreh, produktion, shoot]

state:
  # json | sqlite
  backend: json
  # Empty = ~/.ttt/anomalies/state.json or ~/.ttt/anomalies/state.db
  path: ""

remote:
  # PostgREST-style endpoint mirroring anomalies. Empty disables "tta remote".
  base_url: ""
  client_id: ""
  device_auth_url: ""
  token_url: ""
  scopes: []
  requests_per_second: 5
  timeout: 30s

log:
  # debug | info | warn | error
  level: info
  # text | json
  format: text
`

// Load reads the configuration. The path is $TTA_CONFIG or
// ~/.ttt/anomalies.yaml; the default file is created with annotated defaults
// on first run. An explicit TTA_CONFIG that does not exist is an error.
func Load() (*Config, error) {
	path := os.Getenv("TTA_CONFIG")
	explicit := path != ""
	if !explicit {
		dir, err := storage.BaseDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, FileName)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		if err := writeDefault(path); err != nil {
			// Not fatal: fall back to ENV + defaults.
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, err)
			return loadEnv()
		}
	}
	return LoadFile(path)
}

// LoadFile reads and validates the YAML file at path.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: read %s: %w\nTip: delete the file to regenerate defaults", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func loadEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// writeDefault creates the config directory and writes the annotated template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
