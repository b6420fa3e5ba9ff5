package model

import (
	"fmt"
	"time"
)

// AnomalyType names one rule of the classifier.
type AnomalyType string

const (
	MissingEntry      AnomalyType = "MISSING_ENTRY"
	ExcessWorkShoot   AnomalyType = "EXCESS_WORK_SHOOT"
	ExcessWorkRegular AnomalyType = "EXCESS_WORK_REGULAR"
	UnderPerformance  AnomalyType = "UNDER_PERFORMANCE"
	ForgotToStop      AnomalyType = "FORGOT_TO_STOP"
)

// AnomalyTypes lists every type in rule order.
var AnomalyTypes = []AnomalyType{ForgotToStop, ExcessWorkShoot, ExcessWorkRegular, MissingEntry, UnderPerformance}

// ParseAnomalyType accepts the canonical upper-case name or its lower-case,
// dash-separated form ("missing-entry").
func ParseAnomalyType(s string) (AnomalyType, error) {
	for _, t := range AnomalyTypes {
		if string(t) == s || t.Slug() == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown anomaly type %q", s)
}

// Slug returns the lower-case, dash-separated form of the type.
func (t AnomalyType) Slug() string {
	b := []byte(t)
	for i, c := range b {
		switch {
		case c == '_':
			b[i] = '-'
		case c >= 'A' && c <= 'Z':
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// AnomalyStatus is the human-assigned disposition of an anomaly.
type AnomalyStatus string

const (
	StatusOpen     AnomalyStatus = "open"
	StatusMuted    AnomalyStatus = "muted"
	StatusResolved AnomalyStatus = "resolved"
)

// ParseAnomalyStatus validates a status string.
func ParseAnomalyStatus(s string) (AnomalyStatus, error) {
	switch AnomalyStatus(s) {
	case StatusOpen, StatusMuted, StatusResolved:
		return AnomalyStatus(s), nil
	}
	return "", fmt.Errorf("unknown anomaly status %q", s)
}

// AnomalyKey identifies an anomaly: one per user, day and type.
type AnomalyKey struct {
	UserID string
	Date   string
	Type   AnomalyType
}

// String renders the key as "userId-date-type", the id used by remote stores.
func (k AnomalyKey) String() string {
	return k.UserID + "-" + k.Date + "-" + string(k.Type)
}

// AnomalyDetails carries the measurements that triggered a rule.
type AnomalyDetails struct {
	TrackedHours float64 `json:"tracked_hours"`
	TargetHours  float64 `json:"target_hours"`
	HasShoot     bool    `json:"has_shoot"`
}

// AnomalyComment is one message in an anomaly's discussion thread.
type AnomalyComment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Anomaly is a detected work-pattern irregularity for one user and day.
type Anomaly struct {
	UserID   string           `json:"user_id"`
	Date     string           `json:"date"`
	Type     AnomalyType      `json:"type"`
	Status   AnomalyStatus    `json:"status"`
	Details  AnomalyDetails   `json:"details"`
	Comments []AnomalyComment `json:"comments"`
}

// Key returns the anomaly's identity.
func (a Anomaly) Key() AnomalyKey {
	return AnomalyKey{UserID: a.UserID, Date: a.Date, Type: a.Type}
}

// Clone returns a copy that shares no comment storage with a.
func (a Anomaly) Clone() Anomaly {
	c := a
	c.Comments = make([]AnomalyComment, len(a.Comments))
	copy(c.Comments, a.Comments)
	return c
}
