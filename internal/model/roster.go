package model

import "time"

// WorkSchedule describes which weekdays a user is expected to work and how
// many hours per work day.
type WorkSchedule struct {
	Monday      bool    `yaml:"monday" json:"monday"`
	Tuesday     bool    `yaml:"tuesday" json:"tuesday"`
	Wednesday   bool    `yaml:"wednesday" json:"wednesday"`
	Thursday    bool    `yaml:"thursday" json:"thursday"`
	Friday      bool    `yaml:"friday" json:"friday"`
	Saturday    bool    `yaml:"saturday" json:"saturday"`
	Sunday      bool    `yaml:"sunday" json:"sunday"`
	HoursPerDay float64 `yaml:"hours_per_day" json:"hours_per_day"`
}

// DefaultHoursPerDay is the daily target when no schedule states one.
const DefaultHoursPerDay = 8.0

// DefaultWorkSchedule is used for users without a schedule: Monday to Friday, 8h.
func DefaultWorkSchedule() WorkSchedule {
	return WorkSchedule{
		Monday:      true,
		Tuesday:     true,
		Wednesday:   true,
		Thursday:    true,
		Friday:      true,
		HoursPerDay: DefaultHoursPerDay,
	}
}

// IsWorkDay reports whether the schedule expects work on the given weekday.
func (s WorkSchedule) IsWorkDay(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return s.Monday
	case time.Tuesday:
		return s.Tuesday
	case time.Wednesday:
		return s.Wednesday
	case time.Thursday:
		return s.Thursday
	case time.Friday:
		return s.Friday
	case time.Saturday:
		return s.Saturday
	case time.Sunday:
		return s.Sunday
	}
	return false
}

// TargetHours returns HoursPerDay, falling back to DefaultHoursPerDay when unset.
func (s WorkSchedule) TargetHours() float64 {
	if s.HoursPerDay <= 0 {
		return DefaultHoursPerDay
	}
	return s.HoursPerDay
}

// RoleAdmin marks users who review anomalies but never receive any themselves.
const RoleAdmin = "admin"

// User is a team member whose days are checked for anomalies.
type User struct {
	ID       string        `yaml:"id" json:"id"`
	Name     string        `yaml:"name" json:"name"`
	Active   bool          `yaml:"active" json:"active"`
	Role     string        `yaml:"role" json:"role,omitempty"`
	Schedule *WorkSchedule `yaml:"schedule" json:"schedule,omitempty"`
}

// Checked reports whether anomalies are computed for the user.
func (u User) Checked() bool {
	return u.Active && u.Role != RoleAdmin
}

// AbsenceType classifies an absence request.
type AbsenceType string

const (
	AbsenceVacation        AbsenceType = "vacation"
	AbsenceSick            AbsenceType = "sick"
	AbsenceBusinessTrip    AbsenceType = "business_trip"
	AbsenceHomeOffice      AbsenceType = "home_office"
	AbsenceCompensatoryDay AbsenceType = "compensatory_day"
	AbsenceOther           AbsenceType = "other"
)

// Excludes reports whether an approved absence of this type suppresses the
// missing-entry and under-performance checks. Home office still expects
// logged time.
func (t AbsenceType) Excludes() bool {
	switch t {
	case AbsenceVacation, AbsenceSick, AbsenceBusinessTrip, AbsenceCompensatoryDay:
		return true
	}
	return false
}

// AbsenceStatus is the approval state of an absence request.
type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

// AbsenceRequest covers the inclusive date range [StartDate, EndDate].
// Dates are "2006-01-02"; a trailing time part is ignored.
type AbsenceRequest struct {
	UserID    string        `yaml:"user_id" json:"user_id"`
	StartDate string        `yaml:"start_date" json:"start_date"`
	EndDate   string        `yaml:"end_date" json:"end_date"`
	Type      AbsenceType   `yaml:"type" json:"type"`
	Status    AbsenceStatus `yaml:"status" json:"status"`
}

// Roster is the team file: users with their schedules and absence requests.
type Roster struct {
	Users    []User           `yaml:"users" json:"users"`
	Absences []AbsenceRequest `yaml:"absences" json:"absences"`
}
