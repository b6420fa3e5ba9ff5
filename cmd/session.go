package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tiliavir/ttt-anomalies/internal/anomaly"
	"github.com/Tiliavir/ttt-anomalies/internal/config"
	"github.com/Tiliavir/ttt-anomalies/internal/logging"
	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/storage"
	"github.com/Tiliavir/ttt-anomalies/internal/storage/sqlitestate"
)

// session bundles what every command needs: configuration, the data
// directory, the state repository and an engine seeded from it.
type session struct {
	cfg    *config.Config
	base   string
	loc    *time.Location
	log    *slog.Logger
	state  storage.StateRepository
	// statePath is the state file or database, see stateFilePath.
	statePath string
	engine    *anomaly.Engine

	// saveMu serialises loads and saves of the state repository.
	saveMu sync.Mutex
	// saved is the status of every anomaly as last read from or written to
	// the state repository.
	saved map[model.AnomalyKey]model.AnomalyStatus
}

// openSession loads the configuration and the persisted anomaly state. reg
// receives the engine's collectors and may be nil.
func openSession(ctx context.Context, reg prometheus.Registerer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.NewLogger(cfg.Log)

	base, err := storage.BaseDir()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Engine.Timezone, err)
	}

	statePath := stateFilePath(cfg.State, base)
	state, err := openState(cfg.State, statePath)
	if err != nil {
		return nil, err
	}

	engine, err := anomaly.New(engineOptions(cfg, loc, log, reg))
	if err != nil {
		state.Close()
		return nil, err
	}

	saved, err := state.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		log.Warn("anomaly state is corrupt, starting empty", "error", err)
	case err != nil:
		engine.Close()
		state.Close()
		return nil, fmt.Errorf("loading anomaly state: %w", err)
	default:
		engine.Seed(saved)
	}

	return &session{
		cfg:       cfg,
		base:      base,
		loc:       loc,
		log:       log,
		state:     state,
		statePath: statePath,
		engine:    engine,
		saved:     statuses(saved),
	}, nil
}

func stateFilePath(cfg config.StateConfig, base string) string {
	if cfg.Path != "" {
		return filepath.Clean(cfg.Path)
	}
	name := "state.json"
	if cfg.Backend == config.BackendSQLite {
		name = "state.db"
	}
	return filepath.Join(storage.StateDir(base), name)
}

func openState(cfg config.StateConfig, path string) (storage.StateRepository, error) {
	if cfg.Backend == config.BackendSQLite {
		return sqlitestate.Open(path)
	}
	return storage.NewJSONState(path), nil
}

func engineOptions(cfg *config.Config, loc *time.Location, log *slog.Logger, reg prometheus.Registerer) anomaly.Options {
	return anomaly.Options{
		Debounce:                    cfg.Engine.Debounce,
		EnableCache:                 !cfg.Engine.DisableCache,
		EnablePerformanceMonitoring: !cfg.Engine.DisablePerformanceMonitoring,
		LookbackDays:                cfg.Engine.LookbackDays,
		Workers:                     cfg.Engine.Workers,
		ChunkSize:                   cfg.Engine.ChunkSize,
		Location:                    loc,
		Rules: anomaly.Rules{
			ForgotToStopAfter:     time.Duration(cfg.Rules.ForgotToStopHours * float64(time.Hour)),
			ShootExcessHours:      cfg.Rules.ShootExcessHours,
			RegularExcessHours:    cfg.Rules.RegularExcessHours,
			UnderPerformanceRatio: cfg.Rules.UnderPerformanceRatio,
		},
		OvernightStopHour: cfg.Rules.OvernightStopHour,
		ShootKeywords:     cfg.Categories.ShootKeywords,
		Holidays:          !cfg.Calendar.DisableHolidays,
		HolidayRegion:     cfg.Calendar.Region,
		DefaultUser:       cfg.DefaultUser,
		Logger:            log,
		Registerer:        reg,
	}
}

// loadDataset reads the roster and the entries of the evaluation window.
func (s *session) loadDataset(now time.Time) (anomaly.Dataset, error) {
	roster, err := storage.LoadRoster(storage.RosterPath(s.base), s.cfg.DefaultUser)
	if err != nil {
		return anomaly.Dataset{}, err
	}
	entries, err := storage.LoadWindow(s.base, now, s.cfg.Engine.LookbackDays, s.loc)
	if err != nil {
		return anomaly.Dataset{}, err
	}
	return anomaly.Dataset{Users: roster.Users, Entries: entries, Absences: roster.Absences}, nil
}

// scan loads the current data, recalculates immediately and persists the
// merged state.
func (s *session) scan(ctx context.Context) error {
	data, err := s.loadDataset(time.Now())
	if err != nil {
		return err
	}
	s.engine.SetDataset(data)
	if err := s.engine.ForceRecalculate(ctx); err != nil {
		return fmt.Errorf("anomaly run: %w", err)
	}
	return s.persist(ctx)
}

// persist saves the engine's anomalies after folding in what other tta
// processes saved in the meantime.
func (s *session) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return err
	}
	snapshot := s.engine.Anomalies()
	if err := s.state.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("saving anomaly state: %w", err)
	}
	s.saved = statuses(snapshot)
	return nil
}

// refresh folds statuses and comments saved by other tta processes into the
// engine without writing.
func (s *session) refresh(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *session) refreshLocked(ctx context.Context) error {
	stored, err := s.state.Load(ctx)
	if errors.Is(err, storage.ErrCorrupt) {
		s.log.Warn("anomaly state is corrupt, keeping in-memory state", "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading anomaly state: %w", err)
	}
	if n := reconcile(s.engine, s.saved, stored); n > 0 {
		s.log.Debug("applied saved dispositions", "anomalies", n)
	}
	s.saved = statuses(stored)
	return nil
}

func statuses(anomalies []model.Anomaly) map[model.AnomalyKey]model.AnomalyStatus {
	m := make(map[model.AnomalyKey]model.AnomalyStatus, len(anomalies))
	for _, a := range anomalies {
		m[a.Key()] = a.Status
	}
	return m
}

// reconcile applies the stored state to the engine and returns the number of
// anomalies it changed. A stored status that differs from the last known one
// was set by another process and wins; comments are merged by id. Stored keys
// the engine does not hold are seeded only if they are new to this process,
// so that anomalies this process cleared stay cleared.
func reconcile(engine *anomaly.Engine, known map[model.AnomalyKey]model.AnomalyStatus, stored []model.Anomaly) int {
	var changed int
	var seed []model.Anomaly
	for _, a := range stored {
		k := a.Key()
		last, seen := known[k]
		cur, ok := engine.Anomaly(k)
		if !ok {
			if !seen {
				seed = append(seed, a)
			}
			continue
		}

		touched := false
		if (!seen || last != a.Status) && cur.Status != a.Status {
			if err := engine.UpdateAnomalyStatus(k.UserID, k.Date, k.Type, a.Status); err == nil {
				touched = true
			}
		}
		if merged, added := mergeComments(cur.Comments, a.Comments); added {
			if err := engine.UpdateAnomalyComments(k.UserID, k.Date, k.Type, merged); err == nil {
				touched = true
			}
		}
		if touched {
			changed++
		}
	}
	if len(seed) > 0 {
		engine.Seed(seed)
		changed += len(seed)
	}
	return changed
}

// mergeComments appends the comments of other that ours lacks, ordered by
// timestamp, and reports whether any were added.
func mergeComments(ours, other []model.AnomalyComment) ([]model.AnomalyComment, bool) {
	ids := make(map[string]struct{}, len(ours))
	for _, c := range ours {
		ids[c.ID] = struct{}{}
	}
	merged := slices.Clone(ours)
	for _, c := range other {
		if _, ok := ids[c.ID]; !ok {
			merged = append(merged, c)
		}
	}
	if len(merged) == len(ours) {
		return ours, false
	}
	slices.SortStableFunc(merged, func(a, b model.AnomalyComment) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return merged, true
}

func (s *session) Close() {
	s.engine.Close()
	if err := s.state.Close(); err != nil {
		s.log.Warn("closing anomaly state", "error", err)
	}
}

// mustScan opens a session and scans, exiting with status 2 on any storage
// error.
func mustScan(ctx context.Context) *session {
	s, err := openSession(ctx, nil)
	if err != nil {
		fail(err)
	}
	if err := s.scan(ctx); err != nil {
		s.Close()
		fail(err)
	}
	return s
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}
