// Package anomaly derives work-pattern anomalies from time entries and keeps
// their human-assigned disposition across recomputations.
package anomaly

import (
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/schedule"
	"github.com/Tiliavir/ttt-anomalies/internal/timeindex"
)

// Rules holds the classifier thresholds.
type Rules struct {
	// ForgotToStopAfter flags a running entry whose elapsed time exceeds it.
	ForgotToStopAfter time.Duration
	// ShootExcessHours is the overwork bound on shoot days.
	ShootExcessHours float64
	// RegularExcessHours is the overwork bound on regular days.
	RegularExcessHours float64
	// UnderPerformanceRatio is the share of the target below which a day is flagged.
	UnderPerformanceRatio float64
}

// DefaultRules returns the standard thresholds: 12h, 15h, 9h and 50%.
func DefaultRules() Rules {
	return Rules{
		ForgotToStopAfter:     12 * time.Hour,
		ShootExcessHours:      15,
		RegularExcessHours:    9,
		UnderPerformanceRatio: 0.5,
	}
}

// Category is the kind of work done on a day.
type Category int

const (
	CategoryRegular Category = iota
	CategoryShoot
)

func (c Category) String() string {
	if c == CategoryShoot {
		return "shoot"
	}
	return "regular"
}

// DayCategorizer decides whether a user's day was a shoot day.
type DayCategorizer interface {
	Category(userID, date string) Category
}

// CategorizerFunc adapts a function to DayCategorizer.
type CategorizerFunc func(userID, date string) Category

// Category implements DayCategorizer.
func (f CategorizerFunc) Category(userID, date string) Category {
	return f(userID, date)
}

// DayInput is everything the classifier looks at for one user and day.
type DayInput struct {
	Bucket   timeindex.Bucket
	Day      schedule.Day
	Category Category
	// Past is true for dates strictly before today.
	Past bool
}

// Candidate is an anomaly produced by the current run, before merging.
type Candidate struct {
	Key     model.AnomalyKey
	Details model.AnomalyDetails
}

// Classifier applies the rule set. It holds no state and is safe for
// concurrent use.
type Classifier struct {
	rules Rules
}

// NewClassifier returns a classifier using r; zero thresholds take the defaults.
func NewClassifier(r Rules) *Classifier {
	def := DefaultRules()
	if r.ForgotToStopAfter <= 0 {
		r.ForgotToStopAfter = def.ForgotToStopAfter
	}
	if r.ShootExcessHours <= 0 {
		r.ShootExcessHours = def.ShootExcessHours
	}
	if r.RegularExcessHours <= 0 {
		r.RegularExcessHours = def.RegularExcessHours
	}
	if r.UnderPerformanceRatio <= 0 {
		r.UnderPerformanceRatio = def.UnderPerformanceRatio
	}
	return &Classifier{rules: r}
}

// Rules returns the effective thresholds.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify evaluates every rule independently; a day may yield several
// candidates but at most one per type.
func (c *Classifier) Classify(in DayInput) []Candidate {
	b := in.Bucket
	tracked := float64(b.TrackedSeconds)
	target := in.Day.TargetHours * 3600
	shoot := in.Category == CategoryShoot

	var out []Candidate
	emit := func(t model.AnomalyType) {
		out = append(out, Candidate{
			Key: model.AnomalyKey{UserID: b.UserID, Date: b.Date, Type: t},
			Details: model.AnomalyDetails{
				TrackedHours: tracked / 3600,
				TargetHours:  in.Day.TargetHours,
				HasShoot:     shoot,
			},
		})
	}

	if b.MaxRunningSeconds > int64(c.rules.ForgotToStopAfter.Seconds()) || b.OvernightStops > 0 {
		emit(model.ForgotToStop)
	}
	if shoot && tracked > c.rules.ShootExcessHours*3600 {
		emit(model.ExcessWorkShoot)
	}
	if !in.Day.Excluded && !shoot && tracked > c.rules.RegularExcessHours*3600 {
		emit(model.ExcessWorkRegular)
	}
	if !in.Day.Excluded && target > 0 && in.Past {
		switch {
		case b.TrackedSeconds == 0:
			emit(model.MissingEntry)
		case tracked < c.rules.UnderPerformanceRatio*target:
			emit(model.UnderPerformance)
		}
	}
	return out
}
