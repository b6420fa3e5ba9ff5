package timecalc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
)

func TestFormatHours(t *testing.T) {
	assert.Equal(t, "3.0h", timecalc.FormatHours(3))
	assert.Equal(t, "9.5h", timecalc.FormatHours(9.5))
}

func TestDateKeyUsesLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:30 UTC on Feb 27 is already Feb 28 in Berlin.
	ts := time.Date(2026, 2, 27, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-02-27", timecalc.DateKey(ts, time.UTC))
	assert.Equal(t, "2026-02-28", timecalc.DateKey(ts, berlin))
}

func TestParseDate(t *testing.T) {
	d, err := timecalc.ParseDate("2026-02-27T10:00:00Z", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), d)

	_, err = timecalc.ParseDate("27.02.2026", time.UTC)
	assert.Error(t, err)
}

func TestTrimDate(t *testing.T) {
	assert.Equal(t, "2026-02-27", timecalc.TrimDate("2026-02-27"))
	assert.Equal(t, "2026-02-27", timecalc.TrimDate("2026-02-27T12:00:00+01:00"))
}

func TestLastDays(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	got := timecalc.LastDays(now, 3, time.UTC)
	assert.Equal(t, []string{"2026-02-27", "2026-02-28", "2026-03-01", "2026-03-02"}, got)

	assert.Equal(t, []string{"2026-03-02"}, timecalc.LastDays(now, 0, time.UTC))
}

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2026, 2, 27, 10, 11, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), timecalc.StartOfDay(ts))
}
