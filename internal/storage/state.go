package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

// StateRepository persists anomaly dispositions between runs.
type StateRepository interface {
	// Load returns the saved anomalies; an empty store yields nil.
	Load(ctx context.Context) ([]model.Anomaly, error)
	// Save replaces the saved anomalies with the given snapshot.
	Save(ctx context.Context, anomalies []model.Anomaly) error
	Close() error
}

// StateDir returns base/anomalies.
func StateDir(base string) string {
	return filepath.Join(base, "anomalies")
}

const stateVersion = 1

type stateFile struct {
	Version   int             `json:"version"`
	SavedAt   time.Time       `json:"saved_at"`
	Anomalies []model.Anomaly `json:"anomalies"`
}

// JSONState keeps the anomaly snapshot in a single JSON file.
type JSONState struct {
	path string
	now  func() time.Time
}

// NewJSONState returns a repository backed by path. The file and its
// directory are created on the first Save.
func NewJSONState(path string) *JSONState {
	return &JSONState{path: path, now: time.Now}
}

// Path returns the state file location.
func (s *JSONState) Path() string {
	return s.path
}

// Load reads the state file. A corrupt file is moved aside and reported as
// ErrCorrupt.
func (s *JSONState) Load(ctx context.Context) ([]model.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage error reading %s: %w", s.path, err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, backupCorrupt(s.path, err)
	}
	if sf.Version > stateVersion {
		return nil, fmt.Errorf("%s: unsupported state version %d", s.path, sf.Version)
	}
	return sf.Anomalies, nil
}

// Save writes the snapshot atomically.
func (s *JSONState) Save(ctx context.Context, anomalies []model.Anomaly) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if anomalies == nil {
		anomalies = []model.Anomaly{}
	}
	data, err := json.MarshalIndent(stateFile{
		Version:   stateVersion,
		SavedAt:   s.now().UTC(),
		Anomalies: anomalies,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}
	return writeAtomic(s.path, data)
}

// Close implements StateRepository.
func (s *JSONState) Close() error {
	return nil
}
