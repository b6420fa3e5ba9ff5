package holiday_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/ttt-anomalies/internal/holiday"
)

func isHoliday(c *holiday.Calendar, date string) bool {
	_, ok := c.Lookup(date)
	return ok
}

func TestEaster(t *testing.T) {
	tests := []struct {
		year int
		want time.Time
	}{
		{2024, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		{2025, time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)},
		{2026, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, holiday.Easter(tt.year), "Easter(%d)", tt.year)
	}
}

func TestNationwideCalendar(t *testing.T) {
	cal, err := holiday.NewCalendar("")
	require.NoError(t, err)

	name, ok := cal.Lookup("2026-10-03")
	assert.True(t, ok)
	assert.Equal(t, "Tag der Deutschen Einheit", name)

	assert.True(t, isHoliday(cal, "2026-04-03"), "Karfreitag 2026")
	assert.True(t, isHoliday(cal, "2026-04-06"), "Ostermontag 2026")
	assert.True(t, isHoliday(cal, "2026-05-14"), "Christi Himmelfahrt 2026")
	assert.True(t, isHoliday(cal, "2026-05-25"), "Pfingstmontag 2026")
	assert.False(t, isHoliday(cal, "2026-06-04"), "Fronleichnam is regional")
	assert.False(t, isHoliday(cal, "2026-03-04"))
}

func TestRegionalCalendar(t *testing.T) {
	by, err := holiday.NewCalendar("by")
	require.NoError(t, err)
	assert.True(t, isHoliday(by, "2026-06-04"), "Fronleichnam in Bayern")
	assert.True(t, isHoliday(by, "2026-01-06"))

	sn, err := holiday.NewCalendar("SN")
	require.NoError(t, err)
	name, ok := sn.Lookup("2026-11-18")
	assert.True(t, ok)
	assert.Equal(t, "Buß- und Bettag", name)
}

func TestUnknownRegion(t *testing.T) {
	_, err := holiday.NewCalendar("XX")
	assert.Error(t, err)
}

func TestLookupRejectsMalformedKeys(t *testing.T) {
	cal, err := holiday.NewCalendar("")
	require.NoError(t, err)
	assert.False(t, isHoliday(cal, ""))
	assert.False(t, isHoliday(cal, "20x6-01-01"))

	var none *holiday.Calendar
	assert.False(t, isHoliday(none, "2026-01-01"))
}
