package model

import "time"

// Entry represents a single tracked time entry as ttt stores it, extended with
// the owning user and the task/project identifiers of the tracker backend.
type Entry struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id,omitempty"`
	Project         string     `json:"project"`
	ProjectID       string     `json:"project_id,omitempty"`
	TaskID          string     `json:"task_id,omitempty"`
	Task            *string    `json:"task"`
	Comment         *string    `json:"comment"`
	Tags            []string   `json:"tags"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end"`
	DurationSeconds *int64     `json:"duration_seconds"`
	Source          string     `json:"source"`
}

// Running reports whether the entry's timer is still running.
func (e Entry) Running() bool {
	return e.End == nil
}

// DayFile is the top-level structure stored in each daily JSON file.
type DayFile struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}
