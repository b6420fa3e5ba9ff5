// Package holiday computes German public holidays, nationwide and per state.
package holiday

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Regions lists the supported state codes.
var Regions = []string{"BW", "BY", "BE", "BB", "HB", "HH", "HE", "MV", "NI", "NW", "RP", "SL", "SN", "ST", "SH", "TH"}

type rule struct {
	name   string
	date   func(year int) time.Time
	states []string // nil = nationwide
}

func fixed(month time.Month, day int) func(int) time.Time {
	return func(year int) time.Time {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
}

func easterOffset(days int) func(int) time.Time {
	return func(year int) time.Time {
		return Easter(year).AddDate(0, 0, days)
	}
}

// repentanceDay is the Wednesday before 23 November.
func repentanceDay(year int) time.Time {
	d := time.Date(year, time.November, 22, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Wednesday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

var rules = []rule{
	{"Neujahr", fixed(time.January, 1), nil},
	{"Heilige Drei Könige", fixed(time.January, 6), []string{"BW", "BY", "ST"}},
	{"Internationaler Frauentag", fixed(time.March, 8), []string{"BE", "MV"}},
	{"Karfreitag", easterOffset(-2), nil},
	{"Ostermontag", easterOffset(1), nil},
	{"Tag der Arbeit", fixed(time.May, 1), nil},
	{"Christi Himmelfahrt", easterOffset(39), nil},
	{"Pfingstmontag", easterOffset(50), nil},
	{"Fronleichnam", easterOffset(60), []string{"BW", "BY", "HE", "NW", "RP", "SL"}},
	{"Mariä Himmelfahrt", fixed(time.August, 15), []string{"BY", "SL"}},
	{"Weltkindertag", fixed(time.September, 20), []string{"TH"}},
	{"Tag der Deutschen Einheit", fixed(time.October, 3), nil},
	{"Reformationstag", fixed(time.October, 31), []string{"BB", "HB", "HH", "MV", "NI", "SN", "ST", "SH", "TH"}},
	{"Allerheiligen", fixed(time.November, 1), []string{"BW", "BY", "NW", "RP", "SL"}},
	{"Buß- und Bettag", repentanceDay, []string{"SN"}},
	{"1. Weihnachtstag", fixed(time.December, 25), nil},
	{"2. Weihnachtstag", fixed(time.December, 26), nil},
}

// Easter returns Easter Sunday of the given year (Gregorian calendar).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Calendar answers holiday lookups for one region. Years are computed lazily
// and memoized. A Calendar is safe for concurrent use.
type Calendar struct {
	region string

	mu    sync.Mutex
	years map[int]map[string]string
}

// NewCalendar returns a calendar for the state code region; "" means
// nationwide holidays only.
func NewCalendar(region string) (*Calendar, error) {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region != "" && !slices.Contains(Regions, region) {
		return nil, fmt.Errorf("unknown holiday region %q", region)
	}
	return &Calendar{region: region, years: make(map[int]map[string]string)}, nil
}

// Lookup returns the holiday name for the day key "2006-01-02".
func (c *Calendar) Lookup(date string) (string, bool) {
	if c == nil || len(date) < 4 {
		return "", false
	}
	var year int
	if _, err := fmt.Sscanf(date[:4], "%d", &year); err != nil {
		return "", false
	}
	name, ok := c.year(year)[date]
	return name, ok
}

func (c *Calendar) year(year int) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.years[year]; ok {
		return m
	}
	m := make(map[string]string)
	for _, r := range rules {
		if r.states != nil && !slices.Contains(r.states, c.region) {
			continue
		}
		m[r.date(year).Format("2006-01-02")] = r.name
	}
	c.years[year] = m
	return m
}
