// Package timeindex aggregates time entries into per-user, per-day buckets in
// a single pass.
package timeindex

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
)

// DefaultChunkSize is the number of entries processed between yields.
const DefaultChunkSize = 5000

// Bucket is the aggregated tracked time of one user on one calendar day.
type Bucket struct {
	UserID string
	Date   string
	// TrackedSeconds sums finished durations and the elapsed time of running entries.
	TrackedSeconds int64
	EntryCount     int
	RunningCount   int
	// MaxRunningSeconds is the elapsed time of the longest running entry.
	MaxRunningSeconds int64
	// OvernightStops counts finished entries that started on an earlier day and
	// ended on this one before the overnight stop hour.
	OvernightStops int
	Shoot          bool
}

// Options controls how entries are assigned to buckets.
type Options struct {
	// Now is the evaluation instant used for running entries.
	Now time.Time
	// Location decides the calendar day of an entry. Nil means time.Local.
	Location *time.Location
	// DefaultUser owns entries without a user id.
	DefaultUser string
	// ChunkSize is the number of entries between context checks and yields.
	ChunkSize int
	// OvernightStopHour flags finished overnight entries ending before this
	// hour. Zero disables the check.
	OvernightStopHour int
	// Shoot marks a bucket as a shoot day when it returns true for any entry.
	Shoot func(model.Entry) bool
}

// Index maps user -> date -> bucket.
type Index struct {
	buckets map[string]map[string]*Bucket
	// Entries is the number of entries that were aggregated.
	Entries int
	// Skipped counts malformed entries left out of every bucket.
	Skipped int
}

// Build scans entries once. Malformed entries (end before start, negative
// duration) are skipped and counted. Build checks ctx between chunks and
// yields the processor so a long scan does not monopolise the host.
func Build(ctx context.Context, entries []model.Entry, opts Options) (*Index, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	ix := &Index{buckets: make(map[string]map[string]*Bucket)}
	for i := range entries {
		if i > 0 && i%chunk == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			runtime.Gosched()
		}
		ix.add(&entries[i], opts, loc)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) add(e *model.Entry, opts Options, loc *time.Location) {
	user := e.UserID
	if user == "" {
		user = opts.DefaultUser
	}

	var seconds int64
	if e.Running() {
		seconds = int64(opts.Now.Sub(e.Start).Seconds())
		if seconds < 0 {
			seconds = 0
		}
	} else {
		if e.End.Before(e.Start) {
			ix.Skipped++
			return
		}
		if e.DurationSeconds != nil {
			seconds = *e.DurationSeconds
		} else {
			seconds = int64(e.End.Sub(e.Start).Seconds())
		}
		if seconds < 0 {
			ix.Skipped++
			return
		}
	}

	b := ix.bucket(user, timecalc.DateKey(e.Start, loc))
	b.TrackedSeconds += seconds
	b.EntryCount++
	if e.Running() {
		b.RunningCount++
		if seconds > b.MaxRunningSeconds {
			b.MaxRunningSeconds = seconds
		}
	}
	if !b.Shoot && opts.Shoot != nil && opts.Shoot(*e) {
		b.Shoot = true
	}
	ix.Entries++

	if !e.Running() && opts.OvernightStopHour > 0 {
		end := e.End.In(loc)
		endKey := end.Format(timecalc.DateLayout)
		if endKey != b.Date && end.Hour() < opts.OvernightStopHour {
			ix.bucket(user, endKey).OvernightStops++
		}
	}
}

func (ix *Index) bucket(user, date string) *Bucket {
	days, ok := ix.buckets[user]
	if !ok {
		days = make(map[string]*Bucket)
		ix.buckets[user] = days
	}
	b, ok := days[date]
	if !ok {
		b = &Bucket{UserID: user, Date: date}
		days[date] = b
	}
	return b
}

// Lookup returns the bucket for user and day. A missing bucket is reported as
// a zero bucket with ok == false.
func (ix *Index) Lookup(user, date string) (Bucket, bool) {
	if b, ok := ix.buckets[user][date]; ok {
		return *b, true
	}
	return Bucket{UserID: user, Date: date}, false
}

// Users returns the user ids present in the index, sorted.
func (ix *Index) Users() []string {
	users := make([]string, 0, len(ix.buckets))
	for u := range ix.buckets {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Dates returns the day keys with a bucket for user, sorted.
func (ix *Index) Dates(user string) []string {
	days := ix.buckets[user]
	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Len returns the number of buckets.
func (ix *Index) Len() int {
	n := 0
	for _, days := range ix.buckets {
		n += len(days)
	}
	return n
}

// KeywordMatcher returns a Shoot predicate that matches when the entry's
// project, task, comment or tags contain any keyword, case-insensitively.
func KeywordMatcher(keywords []string) func(model.Entry) bool {
	var kws []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	if len(kws) == 0 {
		return nil
	}
	return func(e model.Entry) bool {
		var sb strings.Builder
		sb.WriteString(e.Project)
		if e.Task != nil {
			sb.WriteString(" ")
			sb.WriteString(*e.Task)
		}
		if e.Comment != nil {
			sb.WriteString(" ")
			sb.WriteString(*e.Comment)
		}
		for _, t := range e.Tags {
			sb.WriteString(" ")
			sb.WriteString(t)
		}
		text := strings.ToLower(sb.String())
		for _, k := range kws {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}
}
