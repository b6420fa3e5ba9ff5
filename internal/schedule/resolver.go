// Package schedule resolves the expected working hours of a user on a day.
package schedule

import (
	"time"

	"github.com/Tiliavir/ttt-anomalies/internal/holiday"
	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
)

// Reason explains why a day carries no target.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonAbsence    Reason = "absence"
	ReasonHoliday    Reason = "holiday"
	ReasonNonWorkDay Reason = "non_work_day"
	ReasonInvalid    Reason = "invalid_date"
)

// Day is the resolved expectation for one user and date.
type Day struct {
	TargetHours float64
	// Excluded days are skipped by the missing-entry and under-performance rules.
	Excluded bool
	Reason   Reason
	// Detail names the absence type or holiday.
	Detail string
}

type span struct {
	from, to string
	typ      model.AbsenceType
}

// Resolver answers target-hour lookups. It is read-only after construction.
type Resolver struct {
	schedules map[string]model.WorkSchedule
	absences  map[string][]span
	holidays  *holiday.Calendar
}

// NewResolver indexes schedules and approved, excluding absences by user.
// cal may be nil to ignore public holidays.
func NewResolver(users []model.User, absences []model.AbsenceRequest, cal *holiday.Calendar) *Resolver {
	r := &Resolver{
		schedules: make(map[string]model.WorkSchedule, len(users)),
		absences:  make(map[string][]span),
		holidays:  cal,
	}
	for _, u := range users {
		if u.Schedule != nil {
			r.schedules[u.ID] = *u.Schedule
		}
	}
	for _, a := range absences {
		if a.Status != model.AbsenceApproved || !a.Type.Excludes() {
			continue
		}
		r.absences[a.UserID] = append(r.absences[a.UserID], span{
			from: timecalc.TrimDate(a.StartDate),
			to:   timecalc.TrimDate(a.EndDate),
			typ:  a.Type,
		})
	}
	return r
}

// Schedule returns the user's schedule or the default one.
func (r *Resolver) Schedule(userID string) model.WorkSchedule {
	if s, ok := r.schedules[userID]; ok {
		return s
	}
	return model.DefaultWorkSchedule()
}

// Resolve returns the target for userID on date ("2006-01-02").
func (r *Resolver) Resolve(userID, date string) Day {
	for _, s := range r.absences[userID] {
		if s.from <= date && date <= s.to {
			return Day{Excluded: true, Reason: ReasonAbsence, Detail: string(s.typ)}
		}
	}
	if name, ok := r.holidays.Lookup(date); ok {
		return Day{Excluded: true, Reason: ReasonHoliday, Detail: name}
	}

	d, err := time.Parse(timecalc.DateLayout, date)
	if err != nil {
		return Day{Excluded: true, Reason: ReasonInvalid}
	}
	sched := r.Schedule(userID)
	if !sched.IsWorkDay(d.Weekday()) {
		return Day{Excluded: true, Reason: ReasonNonWorkDay}
	}
	return Day{TargetHours: sched.TargetHours()}
}
