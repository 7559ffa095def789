package models

import "time"

// PublishedSchedule is the authoritative timetable chosen for a semester.
// Publishing replaces any previous publication for the same semester.
type PublishedSchedule struct {
	ID          string      `db:"id" json:"id"`
	SemesterID  string      `db:"semester_id" json:"semester_id"`
	RunID       string      `db:"run_id" json:"run_id"`
	Algorithm   string      `db:"algorithm" json:"algorithm"`
	Metrics     *RunMetrics `db:"metrics" json:"metrics,omitempty"`
	PublishedBy string      `db:"published_by" json:"published_by"`
	PublishedAt time.Time   `db:"published_at" json:"published_at"`
}

// PublishedAssignment is one activity placement row in a published timetable.
type PublishedAssignment struct {
	ID          string `db:"id" json:"id"`
	ScheduleID  string `db:"schedule_id" json:"schedule_id"`
	ActivityID  string `db:"activity_id" json:"activity_id"`
	Subject     string `db:"subject" json:"subject"`
	Day         int    `db:"day" json:"day"`
	StartPeriod int    `db:"start_period" json:"start_period"`
	Duration    int    `db:"duration" json:"duration"`
	SpaceID     string `db:"space_id" json:"space_id"`
}

// AlgorithmSelection records which run's algorithm an administrator picked
// for a semester. Selection is idempotent per (semester, run).
type AlgorithmSelection struct {
	SemesterID string    `db:"semester_id" json:"semester_id"`
	RunID      string    `db:"run_id" json:"run_id"`
	Algorithm  string    `db:"algorithm" json:"algorithm"`
	SelectedBy string    `db:"selected_by" json:"selected_by"`
	SelectedAt time.Time `db:"selected_at" json:"selected_at"`
}
