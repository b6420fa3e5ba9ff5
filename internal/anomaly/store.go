package anomaly

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
)

// ErrNotFound is returned when an update targets a key the store does not hold,
// typically because the anomaly was auto-cleared.
var ErrNotFound = errors.New("anomaly not found")

// MergeResult lists the keys a merge touched.
type MergeResult struct {
	Inserted  []model.AnomalyKey
	Updated   []model.AnomalyKey
	Removed   []model.AnomalyKey
	Unchanged int
}

// Changed reports whether the merge altered the store.
func (r MergeResult) Changed() bool {
	return len(r.Inserted)+len(r.Updated)+len(r.Removed) > 0
}

// Store holds the current anomalies by key. Status and comments are owned here
// and survive every merge for as long as the anomaly's condition holds.
type Store struct {
	mu    sync.RWMutex
	items map[model.AnomalyKey]*model.Anomaly
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(map[model.AnomalyKey]*model.Anomaly)}
}

// Seed loads previously persisted anomalies, keeping their status and
// comments. Entries with an empty status become open.
func (s *Store) Seed(anomalies []model.Anomaly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range anomalies {
		a = a.Clone()
		if a.Status == "" {
			a.Status = model.StatusOpen
		}
		s.items[a.Key()] = &a
	}
}

// Merge applies one run's candidates: unknown keys are inserted as open,
// known keys get fresh details, and keys without a candidate are removed
// regardless of their status.
func (s *Store) Merge(candidates []Candidate) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res MergeResult
	seen := make(map[model.AnomalyKey]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}

		if cur, ok := s.items[c.Key]; ok {
			if cur.Details != c.Details {
				cur.Details = c.Details
				res.Updated = append(res.Updated, c.Key)
			} else {
				res.Unchanged++
			}
			continue
		}
		s.items[c.Key] = &model.Anomaly{
			UserID:   c.Key.UserID,
			Date:     c.Key.Date,
			Type:     c.Key.Type,
			Status:   model.StatusOpen,
			Details:  c.Details,
			Comments: []model.AnomalyComment{},
		}
		res.Inserted = append(res.Inserted, c.Key)
	}
	for k := range s.items {
		if _, ok := seen[k]; !ok {
			delete(s.items, k)
			res.Removed = append(res.Removed, k)
		}
	}
	sortKeys(res.Inserted)
	sortKeys(res.Updated)
	sortKeys(res.Removed)
	return res
}

// Get returns a copy of the anomaly stored under key.
func (s *Store) Get(key model.AnomalyKey) (model.Anomaly, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[key]
	if !ok {
		return model.Anomaly{}, false
	}
	return a.Clone(), true
}

// UpdateStatus sets the disposition of an anomaly.
func (s *Store) UpdateStatus(key model.AnomalyKey, status model.AnomalyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[key]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

// UpdateComments replaces the comment thread of an anomaly.
func (s *Store) UpdateComments(key model.AnomalyKey, comments []model.AnomalyComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[key]
	if !ok {
		return ErrNotFound
	}
	a.Comments = slices.Clone(comments)
	if a.Comments == nil {
		a.Comments = []model.AnomalyComment{}
	}
	return nil
}

// AddComment appends one comment to an anomaly's thread.
func (s *Store) AddComment(key model.AnomalyKey, c model.AnomalyComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[key]
	if !ok {
		return ErrNotFound
	}
	a.Comments = append(a.Comments, c)
	return nil
}

// Snapshot returns copies of all anomalies ordered by date, user and rule.
func (s *Store) Snapshot() []model.Anomaly {
	s.mu.RLock()
	out := make([]model.Anomaly, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return keyLess(out[i].Key(), out[j].Key())
	})
	return out
}

// Len returns the number of stored anomalies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func typeRank(t model.AnomalyType) int {
	if i := slices.Index(model.AnomalyTypes, t); i >= 0 {
		return i
	}
	return len(model.AnomalyTypes)
}

func keyLess(a, b model.AnomalyKey) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return typeRank(a.Type) < typeRank(b.Type)
}

func sortKeys(keys []model.AnomalyKey) {
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
}
