package anomaly

import (
	"sync"
)

// Fingerprint summarises every classifier input of a day. Two equal
// fingerprints always classify identically.
type Fingerprint struct {
	EntryCount        int
	TrackedSeconds    int64
	MaxRunningSeconds int64
	OvernightStops    int
	Category          Category
	TargetHours       float64
	Excluded          bool
	Past              bool
}

// FingerprintOf derives the fingerprint of a day input.
func FingerprintOf(in DayInput) Fingerprint {
	return Fingerprint{
		EntryCount:        in.Bucket.EntryCount,
		TrackedSeconds:    in.Bucket.TrackedSeconds,
		MaxRunningSeconds: in.Bucket.MaxRunningSeconds,
		OvernightStops:    in.Bucket.OvernightStops,
		Category:          in.Category,
		TargetHours:       in.Day.TargetHours,
		Excluded:          in.Day.Excluded,
		Past:              in.Past,
	}
}

type dayKey struct {
	user, date string
}

type cacheEntry struct {
	fp         Fingerprint
	candidates []Candidate
}

// Cache remembers the classification of each user-day with the fingerprint it
// was computed from. It is owned by one engine; a Cache is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[dayKey]cacheEntry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[dayKey]cacheEntry)}
}

// Lookup returns the stored candidates when the fingerprint is unchanged.
func (c *Cache) Lookup(user, date string, fp Fingerprint) ([]Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[dayKey{user, date}]
	if !ok || e.fp != fp {
		return nil, false
	}
	return e.candidates, true
}

// Store records the classification for a day, replacing any previous one.
func (c *Cache) Store(user, date string, fp Fingerprint, candidates []Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[dayKey{user, date}] = cacheEntry{fp: fp, candidates: candidates}
}

// Retain drops every entry for which keep returns false.
func (c *Cache) Retain(keep func(user, date string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if !keep(k.user, k.date) {
			delete(c.entries, k)
		}
	}
}

// Clear empties the cache, forcing full reclassification.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[dayKey]cacheEntry)
}

// InvalidateUser drops every entry of a user.
func (c *Cache) InvalidateUser(user string) {
	c.Retain(func(u, _ string) bool { return u != user })
}

// InvalidateDate drops every entry of a day across users.
func (c *Cache) InvalidateDate(date string) {
	c.Retain(func(_, d string) bool { return d != date })
}

// Len returns the number of cached days.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
