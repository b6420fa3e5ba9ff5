package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/ttt-anomalies/internal/debounce"
	"github.com/Tiliavir/ttt-anomalies/internal/holiday"
	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/schedule"
	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
	"github.com/Tiliavir/ttt-anomalies/internal/timeindex"
)

// DefaultLocation is the time zone day keys are computed in.
const DefaultLocation = "Europe/Berlin"

// DefaultShootKeywords mark an entry as shoot work when found in its text.
var DefaultShootKeywords = []string{"dreh", "produktion", "shoot"}

// Dataset is the input of one run.
type Dataset struct {
	Users    []model.User
	Entries  []model.Entry
	Absences []model.AbsenceRequest
}

// Options configures an Engine.
type Options struct {
	Debounce                    time.Duration
	EnableCache                 bool
	EnablePerformanceMonitoring bool
	// LookbackDays is the number of days before today that are evaluated.
	LookbackDays int
	Workers      int
	ChunkSize    int
	Location     *time.Location
	Rules        Rules
	// OvernightStopHour flags finished entries that end on a later day before
	// this hour. Negative disables the check.
	OvernightStopHour int
	ShootKeywords     []string
	// Categorizer overrides the keyword based shoot detection when set.
	Categorizer DayCategorizer
	// Holidays excludes public holidays of HolidayRegion ("" = nationwide only).
	Holidays      bool
	HolidayRegion string
	// DefaultUser owns entries without a user id.
	DefaultUser string
	Now         func() time.Time
	Logger      *slog.Logger
	// Registerer receives the Prometheus collectors; nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Instance labels this engine's collectors when several engines share a
	// Registerer.
	Instance string
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	loc, err := time.LoadLocation(DefaultLocation)
	if err != nil {
		loc = time.Local
	}
	return Options{
		Debounce:                    3 * time.Second,
		EnableCache:                 true,
		EnablePerformanceMonitoring: true,
		LookbackDays:                30,
		Workers:                     4,
		ChunkSize:                   timeindex.DefaultChunkSize,
		Location:                    loc,
		Rules:                       DefaultRules(),
		OvernightStopHour:           9,
		ShootKeywords:               DefaultShootKeywords,
		Holidays:                    true,
		DefaultUser:                 "me",
	}
}

// RunReport summarises a committed run.
type RunReport struct {
	Generation        uint64
	Duration          time.Duration
	BucketsRecomputed int
	BucketsCached     int
	SkippedEntries    int
	Merge             MergeResult
	Anomalies         []model.Anomaly
}

// Engine recomputes anomalies from a dataset on a debounced schedule and keeps
// their dispositions between runs.
type Engine struct {
	opts       Options
	log        *slog.Logger
	classifier *Classifier
	cache      *Cache
	store      *Store
	monitor    *Monitor
	calendar   *holiday.Calendar
	shoot      func(model.Entry) bool
	sched      *debounce.Scheduler

	mu        sync.Mutex
	data      Dataset
	listeners []func(RunReport)
}

// New creates an engine. Zero numeric options take their defaults.
func New(opts Options) (*Engine, error) {
	def := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = def.Debounce
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = def.LookbackDays
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.OvernightStopHour == 0 {
		opts.OvernightStopHour = def.OvernightStopHour
	}
	if opts.OvernightStopHour > 23 {
		return nil, fmt.Errorf("overnight stop hour %d out of range", opts.OvernightStopHour)
	}
	if opts.ShootKeywords == nil {
		opts.ShootKeywords = def.ShootKeywords
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var cal *holiday.Calendar
	if opts.Holidays {
		c, err := holiday.NewCalendar(opts.HolidayRegion)
		if err != nil {
			return nil, err
		}
		cal = c
	}

	monitor, err := NewMonitor(opts.EnablePerformanceMonitoring, opts.Registerer, opts.Instance)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:       opts,
		log:        opts.Logger.With("component", "anomaly-engine"),
		classifier: NewClassifier(opts.Rules),
		cache:      NewCache(),
		store:      NewStore(),
		monitor:    monitor,
		calendar:   cal,
		shoot:      timeindex.KeywordMatcher(opts.ShootKeywords),
	}
	e.sched = debounce.New(opts.Debounce, e.run, debounce.WithErrorHandler(func(gen uint64, err error) {
		e.log.Warn("anomaly run failed", "generation", gen, "error", err)
	}))
	return e, nil
}

// Anomalies returns the current anomalies sorted by date, user and type.
func (e *Engine) Anomalies() []model.Anomaly {
	return e.store.Snapshot()
}

// Anomaly returns a single anomaly by key.
func (e *Engine) Anomaly(key model.AnomalyKey) (model.Anomaly, bool) {
	return e.store.Get(key)
}

// IsCalculating reports whether a run is in flight.
func (e *Engine) IsCalculating() bool {
	return e.sched.Running()
}

// Metrics returns the figures of the performance monitor.
func (e *Engine) Metrics() PerformanceMetrics {
	return e.monitor.Metrics()
}

// SetDataset replaces the input of future runs and schedules one.
func (e *Engine) SetDataset(d Dataset) {
	e.mu.Lock()
	e.data = Dataset{
		Users:    slices.Clone(d.Users),
		Entries:  slices.Clone(d.Entries),
		Absences: slices.Clone(d.Absences),
	}
	e.mu.Unlock()
	e.sched.Trigger()
}

// Trigger schedules a debounced run.
func (e *Engine) Trigger() {
	e.sched.Trigger()
}

// ClearCache drops every cached classification.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// ForceRecalculate cancels any pending run and recalculates now.
func (e *Engine) ForceRecalculate(ctx context.Context) error {
	return e.sched.Force(ctx)
}

// InvalidateUser drops the cached days of a user and schedules a run.
func (e *Engine) InvalidateUser(userID string) {
	e.cache.InvalidateUser(userID)
	e.sched.Trigger()
}

// InvalidateDate drops the cached classifications of a day and schedules a run.
func (e *Engine) InvalidateDate(date string) {
	e.cache.InvalidateDate(timecalc.TrimDate(date))
	e.sched.Trigger()
}

// UpdateAnomalyStatus sets the status of an existing anomaly.
func (e *Engine) UpdateAnomalyStatus(userID, date string, t model.AnomalyType, status model.AnomalyStatus) error {
	key := model.AnomalyKey{UserID: userID, Date: timecalc.TrimDate(date), Type: t}
	if _, err := model.ParseAnomalyStatus(string(status)); err != nil {
		return fmt.Errorf("update status of %s: %w", key, err)
	}
	if err := e.store.UpdateStatus(key, status); err != nil {
		return fmt.Errorf("update status of %s: %w", key, err)
	}
	e.monitor.ObserveAnomalies(e.store.Snapshot())
	return nil
}

// UpdateAnomalyComments replaces the comments of an existing anomaly.
func (e *Engine) UpdateAnomalyComments(userID, date string, t model.AnomalyType, comments []model.AnomalyComment) error {
	key := model.AnomalyKey{UserID: userID, Date: timecalc.TrimDate(date), Type: t}
	if err := e.store.UpdateComments(key, comments); err != nil {
		return fmt.Errorf("update comments of %s: %w", key, err)
	}
	return nil
}

// AddAnomalyComment appends a comment by authorID and returns it.
func (e *Engine) AddAnomalyComment(userID, date string, t model.AnomalyType, authorID, message string) (model.AnomalyComment, error) {
	key := model.AnomalyKey{UserID: userID, Date: timecalc.TrimDate(date), Type: t}
	c := model.AnomalyComment{
		ID:        uuid.NewString(),
		UserID:    authorID,
		Message:   message,
		Timestamp: e.opts.Now().UTC(),
	}
	if err := e.store.AddComment(key, c); err != nil {
		return model.AnomalyComment{}, fmt.Errorf("comment on %s: %w", key, err)
	}
	return c, nil
}

// Seed loads persisted anomalies. Keys already held take the seeded status,
// details and comments.
func (e *Engine) Seed(anomalies []model.Anomaly) {
	e.store.Seed(anomalies)
	e.monitor.ObserveAnomalies(e.store.Snapshot())
}

// OnCommit registers fn to be called after every committed run.
func (e *Engine) OnCommit(fn func(RunReport)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Close stops scheduling and waits for debounced runs to finish.
func (e *Engine) Close() {
	e.sched.Close()
}

func (e *Engine) dataset() Dataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

type userSpan struct {
	from, to int
}

func (e *Engine) run(ctx context.Context, gen uint64) error {
	started := time.Now()
	now := e.opts.Now()
	data := e.dataset()

	overnight := e.opts.OvernightStopHour
	if overnight < 0 {
		overnight = 0
	}
	ix, err := timeindex.Build(ctx, data.Entries, timeindex.Options{
		Now:               now,
		Location:          e.opts.Location,
		DefaultUser:       e.opts.DefaultUser,
		ChunkSize:         e.opts.ChunkSize,
		OvernightStopHour: overnight,
		Shoot:             e.shoot,
	})
	if err != nil {
		return e.abort(gen, fmt.Errorf("build time index: %w", err))
	}

	resolver := schedule.NewResolver(data.Users, data.Absences, e.calendar)
	inputs, spans := e.plan(ix, e.checkedUsers(data.Users, ix), resolver, now)
	if err := ctx.Err(); err != nil {
		return e.abort(gen, err)
	}

	results := make([][]Candidate, len(inputs))
	fresh := make([]bool, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, sp := range spans {
		g.Go(func() error {
			for i := sp.from; i < sp.to; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if e.opts.EnableCache {
					in := inputs[i]
					if c, ok := e.cache.Lookup(in.Bucket.UserID, in.Bucket.Date, FingerprintOf(in)); ok {
						results[i] = c
						continue
					}
				}
				results[i] = e.classifier.Classify(inputs[i])
				fresh[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return e.abort(gen, err)
	}

	var recomputed, cached int
	var candidates []Candidate
	for i := range inputs {
		if fresh[i] {
			recomputed++
		} else {
			cached++
		}
		candidates = append(candidates, results[i]...)
	}

	e.mu.Lock()
	if !e.sched.IsCurrent(gen) {
		e.mu.Unlock()
		return e.abort(gen, context.Canceled)
	}
	if e.opts.EnableCache {
		keep := make(map[dayKey]struct{}, len(inputs))
		for i, in := range inputs {
			k := dayKey{in.Bucket.UserID, in.Bucket.Date}
			keep[k] = struct{}{}
			if fresh[i] {
				e.cache.Store(k.user, k.date, FingerprintOf(in), results[i])
			}
		}
		e.cache.Retain(func(user, date string) bool {
			_, ok := keep[dayKey{user, date}]
			return ok
		})
	}
	merge := e.store.Merge(candidates)
	snapshot := e.store.Snapshot()
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()

	elapsed := time.Since(started)
	e.monitor.RecordRun(elapsed, recomputed, cached, ix.Skipped)
	e.monitor.ObserveAnomalies(snapshot)
	e.log.Debug("anomaly run committed",
		"generation", gen,
		"duration", elapsed,
		"recomputed", recomputed,
		"cached", cached,
		"skipped_entries", ix.Skipped,
		"inserted", len(merge.Inserted),
		"updated", len(merge.Updated),
		"removed", len(merge.Removed),
		"total", len(snapshot),
	)

	report := RunReport{
		Generation:        gen,
		Duration:          elapsed,
		BucketsRecomputed: recomputed,
		BucketsCached:     cached,
		SkippedEntries:    ix.Skipped,
		Merge:             merge,
		Anomalies:         snapshot,
	}
	for _, fn := range listeners {
		fn(report)
	}
	return nil
}

// abort discards a superseded run silently and reports anything else as a
// failure.
func (e *Engine) abort(gen uint64, err error) error {
	if !e.sched.IsCurrent(gen) && errors.Is(err, context.Canceled) {
		e.monitor.RecordDiscard()
		e.log.Debug("stale anomaly run discarded", "generation", gen)
		return nil
	}
	e.monitor.RecordFailure()
	return err
}

// checkedUsers returns the users whose days are evaluated. Without a roster
// every user found in the entries is checked.
func (e *Engine) checkedUsers(users []model.User, ix *timeindex.Index) []string {
	if len(users) == 0 {
		return ix.Users()
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.Checked() {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// plan lists the day inputs of every checked user: each date of the lookback
// window plus any earlier day that still holds a running entry. Inputs are
// grouped by user.
func (e *Engine) plan(ix *timeindex.Index, users []string, resolver *schedule.Resolver, now time.Time) ([]DayInput, []userSpan) {
	window := timecalc.LastDays(now, e.opts.LookbackDays, e.opts.Location)
	today := window[len(window)-1]

	inputs := make([]DayInput, 0, len(users)*len(window))
	spans := make([]userSpan, 0, len(users))
	for _, user := range users {
		from := len(inputs)
		var dates []string
		for _, d := range ix.Dates(user) {
			if d >= window[0] {
				break
			}
			if b, _ := ix.Lookup(user, d); b.RunningCount > 0 {
				dates = append(dates, d)
			}
		}
		dates = append(dates, window...)
		for _, date := range dates {
			b, ok := ix.Lookup(user, date)
			if !ok {
				b = timeindex.Bucket{UserID: user, Date: date}
			}
			inputs = append(inputs, DayInput{
				Bucket:   b,
				Day:      resolver.Resolve(user, date),
				Category: e.category(b),
				Past:     date < today,
			})
		}
		spans = append(spans, userSpan{from: from, to: len(inputs)})
	}
	return inputs, spans
}

func (e *Engine) category(b timeindex.Bucket) Category {
	if e.opts.Categorizer != nil {
		return e.opts.Categorizer.Category(b.UserID, b.Date)
	}
	if b.Shoot {
		return CategoryShoot
	}
	return CategoryRegular
}
