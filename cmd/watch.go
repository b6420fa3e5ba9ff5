package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/ttt-anomalies/internal/anomaly"
	"github.com/Tiliavir/ttt-anomalies/internal/storage"
	"github.com/Tiliavir/ttt-anomalies/internal/watch"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep detecting anomalies while the data directory changes",
	Long: `Watches the ttt data directory and recalculates anomalies after every
change, debounced. Runs that change the anomaly set are saved to the
anomaly state, and statuses or comments saved by other tta commands are
picked up while it runs.
SIGHUP clears the classification cache and forces a full run.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

var dayFilePattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}\.json$`)

// relevantPath reports whether a change below base affects the dataset: a
// day file or the roster.
func relevantPath(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == storage.RosterFile || dayFilePattern.MatchString(rel)
}

// splitChanges reports whether a batch touched the state file and whether it
// touched anything else.
func splitChanges(statePath string, changes []watch.Change) (state, data bool) {
	for _, c := range changes {
		if filepath.Clean(c.Path) == statePath {
			state = true
		} else {
			data = true
		}
	}
	return state, data
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := openSession(ctx, reg)
	if err != nil {
		fail(err)
	}
	defer s.Close()

	p := painter{color: colorOutput()}
	s.engine.OnCommit(func(r anomaly.RunReport) {
		if !r.Merge.Changed() {
			return
		}
		if err := s.persist(context.Background()); err != nil {
			s.log.Error("persist anomaly state", "error", err)
		}
		fmt.Printf("%s  +%d ~%d -%d  ", time.Now().In(s.loc).Format("15:04:05"),
			len(r.Merge.Inserted), len(r.Merge.Updated), len(r.Merge.Removed))
		printSummary(os.Stdout, r.Anomalies, p)
	})

	reload := func() bool {
		data, err := s.loadDataset(time.Now())
		if err != nil {
			s.log.Warn("reload data", "error", err)
			return false
		}
		s.engine.SetDataset(data)
		return true
	}

	if !reload() {
		fail(errors.New("initial load failed, see log"))
	}
	if err := s.engine.ForceRecalculate(ctx); err != nil {
		fail(err)
	}
	// The forced run may have committed nothing new; save anyway so the
	// state matches the current window.
	if err := s.persist(ctx); err != nil {
		fail(err)
	}

	refresh := func() {
		if err := s.refresh(ctx); err != nil {
			s.log.Warn("reload anomaly state", "error", err)
		}
	}

	w, err := watch.New(s.base, func(changes []watch.Change) {
		state, data := splitChanges(s.statePath, changes)
		s.log.Debug("files changed", "state", state, "data", data)
		if state {
			// Dispositions set by mute, resolve or comment.
			refresh()
		}
		if data {
			reload()
		}
	}, watch.Options{
		Ignore: []string{"*.tmp", "*.corrupt", "auth", ".git"},
		Filter: func(path string) bool {
			return filepath.Clean(path) == s.statePath || relevantPath(s.base, path)
		},
		Logger: s.log,
	})
	if err != nil {
		fail(err)
	}
	if err := w.Start(ctx); err != nil {
		fail(err)
	}
	defer w.Stop()

	var srv *http.Server
	if watchMetricsAddr != "" {
		srv = &http.Server{
			Addr:              watchMetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("metrics server", "addr", watchMetricsAddr, "error", err)
			}
		}()
		s.log.Info("serving metrics", "addr", watchMetricsAddr)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(s.cfg.Engine.Tick)
	defer ticker.Stop()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", s.base)
	for {
		select {
		case <-ctx.Done():
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				srv.Shutdown(shutdownCtx)
				cancel()
			}
			fmt.Println("Stopped.")
			return nil
		case <-ticker.C:
			// The window moves at midnight and running entries keep aging.
			refresh()
			reload()
		case <-hup:
			s.log.Info("SIGHUP: clearing cache and recalculating")
			refresh()
			s.engine.ClearCache()
			if reload() {
				if err := s.engine.ForceRecalculate(ctx); err != nil && ctx.Err() == nil {
					s.log.Warn("forced recalculation", "error", err)
				}
			}
		}
	}
}
