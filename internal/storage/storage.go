// Package storage reads ttt's day files, the team roster and the persisted
// anomaly state below the ttt home directory.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

// ErrCorrupt marks a file that could not be decoded. The file is moved aside
// to <name>.corrupt before the error is returned.
var ErrCorrupt = errors.New("corrupt file")

// RunningSlackDays is how far before the lookback window day files are read
// for timers that were never stopped.
const RunningSlackDays = 7

// BaseDir returns the root data directory: $TTT_HOME or ~/.ttt.
func BaseDir() (string, error) {
	if dir := os.Getenv("TTT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".ttt"), nil
}

// dayFilePath returns the path for the given date's JSON file.
func dayFilePath(base string, t time.Time) string {
	return filepath.Join(base, t.Format("2006"), t.Format("01"), t.Format("02")+".json")
}

// LoadDay loads the DayFile for the given date. Returns an empty DayFile if not found.
func LoadDay(base string, t time.Time) (model.DayFile, error) {
	path := dayFilePath(base, t)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.DayFile{Date: t.Format("2006-01-02"), Entries: []model.Entry{}}, nil
	}
	if err != nil {
		return model.DayFile{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var df model.DayFile
	if err := json.Unmarshal(data, &df); err != nil {
		return model.DayFile{}, backupCorrupt(path, err)
	}
	return df, nil
}

// LoadRange loads all entries in [from, to] inclusive.
func LoadRange(base string, from, to time.Time) ([]model.Entry, error) {
	var entries []model.Entry
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		df, err := LoadDay(base, d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, df.Entries...)
	}
	return entries, nil
}

// LoadWindow loads every entry of the last lookbackDays days up to now, plus
// the still running entries of the RunningSlackDays before that.
func LoadWindow(base string, now time.Time, lookbackDays int, loc *time.Location) ([]model.Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	today := now.In(loc)
	from := today.AddDate(0, 0, -lookbackDays)

	entries, err := LoadRange(base, from.AddDate(0, 0, -RunningSlackDays), from.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	running := entries[:0]
	for _, e := range entries {
		if e.Running() {
			running = append(running, e)
		}
	}

	window, err := LoadRange(base, from, today)
	if err != nil {
		return nil, err
	}
	return append(running, window...), nil
}

// writeAtomic writes data to a temp file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

func backupCorrupt(path string, cause error) error {
	backupPath := path + ".corrupt"
	_ = os.Rename(path, backupPath)
	return fmt.Errorf("%w: %s (backed up to %s): %v", ErrCorrupt, path, backupPath, cause)
}
