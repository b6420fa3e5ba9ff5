// Package watch reports batches of file changes below a directory tree.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is one file system event.
type Change struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// Handler receives a debounced, deduplicated batch of changes.
type Handler func(changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period that closes a batch. Default: 200ms.
	Debounce time.Duration
	// Ignore holds glob patterns matched against base names. Matching
	// directories are not descended into.
	Ignore []string
	// Filter, when set, drops events for paths it returns false for.
	Filter     func(path string) bool
	BufferSize int
	Logger     *slog.Logger
}

// DefaultOptions ignores temp files, corrupt backups and the state and auth
// directories tta itself writes to.
func DefaultOptions() Options {
	return Options{
		Debounce:   200 * time.Millisecond,
		Ignore:     []string{"*.tmp", "*.corrupt", "anomalies", "auth", ".git"},
		BufferSize: 1000,
	}
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root    string
	opts    Options
	fsw     *fsnotify.Watcher
	handler Handler
	log     *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
}

// New creates a watcher for root. Zero options take the defaults.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	def := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = def.Debounce
	}
	if opts.Ignore == nil {
		opts.Ignore = def.Ignore
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		opts:    opts,
		fsw:     fsw,
		handler: handler,
		log:     opts.Logger.With("component", "watch"),
		changes: make(chan Change, opts.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start adds the tree to the watch list and starts the event and debounce
// goroutines. Both exit when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.root, 0o700); err != nil {
		return err
	}
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching and waits for the goroutines to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.Ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			// New year and month directories appear while tracking.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Warn("watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if w.opts.Filter != nil && !w.opts.Filter(event.Name) {
				continue
			}
			select {
			case w.changes <- Change{Path: event.Name, Op: event.Op, Time: time.Now()}:
			default:
				w.log.Warn("change buffer full, dropping event", "path", event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			w.handler(dedupe(batch))
		}
		batch = batch[:0]
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}

// dedupe keeps the latest change per path, ordered by path.
func dedupe(batch []Change) []Change {
	latest := make(map[string]Change, len(batch))
	for _, c := range batch {
		if prev, ok := latest[c.Path]; ok {
			c.Op |= prev.Op
		}
		latest[c.Path] = c
	}
	out := make([]Change, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
