package timeindex_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/timeindex"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func finished(id, user string, start time.Time, d time.Duration) model.Entry {
	end := start.Add(d)
	secs := int64(d.Seconds())
	return model.Entry{ID: id, UserID: user, Project: "P", Start: start, End: &end, DurationSeconds: &secs}
}

func running(id, user string, start time.Time) model.Entry {
	stale := int64(60)
	return model.Entry{ID: id, UserID: user, Project: "P", Start: start, DurationSeconds: &stale}
}

func opts() timeindex.Options {
	return timeindex.Options{Now: now, Location: time.UTC, DefaultUser: "me", OvernightStopHour: 9}
}

func TestBuildAggregatesPerUserAndDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entries := []model.Entry{
		finished("1", "u1", day, 2*time.Hour),
		finished("2", "u1", day.Add(3*time.Hour), 90*time.Minute),
		finished("3", "u2", day, time.Hour),
		finished("4", "u1", day.AddDate(0, 0, 1), time.Hour),
	}

	ix, err := timeindex.Build(context.Background(), entries, opts())
	require.NoError(t, err)

	b, ok := ix.Lookup("u1", "2026-03-02")
	require.True(t, ok)
	assert.Equal(t, int64(3*3600+1800), b.TrackedSeconds)
	assert.Equal(t, 2, b.EntryCount)
	assert.Equal(t, 0, b.RunningCount)

	assert.Equal(t, []string{"u1", "u2"}, ix.Users())
	assert.Equal(t, []string{"2026-03-02", "2026-03-03"}, ix.Dates("u1"))
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, 4, ix.Entries)
}

func TestBuildRunningEntryUsesElapsed(t *testing.T) {
	start := now.Add(-13 * time.Hour)
	ix, err := timeindex.Build(context.Background(), []model.Entry{running("r", "u1", start)}, opts())
	require.NoError(t, err)

	b, ok := ix.Lookup("u1", "2026-03-03")
	require.True(t, ok)
	assert.Equal(t, int64(13*3600), b.TrackedSeconds, "stored duration must be ignored")
	assert.Equal(t, int64(13*3600), b.MaxRunningSeconds)
	assert.Equal(t, 1, b.RunningCount)
}

func TestBuildSkipsMalformedEntries(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	backwards := finished("bad", "u1", day, time.Hour)
	before := day.Add(-time.Hour)
	backwards.End = &before

	negative := finished("neg", "u1", day, time.Hour)
	n := int64(-5)
	negative.DurationSeconds = &n

	ok := finished("ok", "u1", day, time.Hour)

	ix, err := timeindex.Build(context.Background(), []model.Entry{backwards, negative, ok}, opts())
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Skipped)

	b, _ := ix.Lookup("u1", "2026-03-02")
	assert.Equal(t, int64(3600), b.TrackedSeconds)
	assert.Equal(t, 1, b.EntryCount)
}

func TestBuildDefaultUserAndMissingDuration(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	e := finished("1", "", day, 45*time.Minute)
	e.DurationSeconds = nil

	ix, err := timeindex.Build(context.Background(), []model.Entry{e}, opts())
	require.NoError(t, err)

	b, ok := ix.Lookup("me", "2026-03-02")
	require.True(t, ok)
	assert.Equal(t, int64(45*60), b.TrackedSeconds)
}

func TestBuildOvernightStop(t *testing.T) {
	start := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	ix, err := timeindex.Build(context.Background(), []model.Entry{finished("1", "u1", start, 8*time.Hour)}, opts())
	require.NoError(t, err)

	startDay, _ := ix.Lookup("u1", "2026-03-02")
	assert.Equal(t, int64(8*3600), startDay.TrackedSeconds)
	assert.Zero(t, startDay.OvernightStops)

	endDay, ok := ix.Lookup("u1", "2026-03-03")
	require.True(t, ok)
	assert.Equal(t, 1, endDay.OvernightStops)
	assert.Zero(t, endDay.EntryCount)
}

func TestBuildOvernightAfterStopHourIgnored(t *testing.T) {
	start := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	ix, err := timeindex.Build(context.Background(), []model.Entry{finished("1", "u1", start, 12*time.Hour)}, opts())
	require.NoError(t, err)

	_, ok := ix.Lookup("u1", "2026-03-03")
	assert.False(t, ok)
}

func TestBuildShootKeywords(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	task := "Drehtag Außenaufnahmen"
	shoot := finished("1", "u1", day, time.Hour)
	shoot.Task = &task

	o := opts()
	o.Shoot = timeindex.KeywordMatcher([]string{"dreh", "produktion"})

	ix, err := timeindex.Build(context.Background(), []model.Entry{shoot, finished("2", "u2", day, time.Hour)}, o)
	require.NoError(t, err)

	b, _ := ix.Lookup("u1", "2026-03-02")
	assert.True(t, b.Shoot)
	b, _ = ix.Lookup("u2", "2026-03-02")
	assert.False(t, b.Shoot)
}

func TestKeywordMatcherEmpty(t *testing.T) {
	assert.Nil(t, timeindex.KeywordMatcher([]string{" ", ""}))
}

func TestBuildHonoursCancellation(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entries := make([]model.Entry, 10)
	for i := range entries {
		entries[i] = finished("e", "u1", day, time.Minute)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := opts()
	o.ChunkSize = 3
	_, err := timeindex.Build(ctx, entries, o)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookupMissing(t *testing.T) {
	ix, err := timeindex.Build(context.Background(), nil, opts())
	require.NoError(t, err)
	b, ok := ix.Lookup("u1", "2026-03-02")
	assert.False(t, ok)
	assert.Equal(t, "u1", b.UserID)
	assert.Equal(t, "2026-03-02", b.Date)
}
