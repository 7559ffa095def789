package models

import (
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// CalendarDayRow is one operating day of a semester's calendar.
type CalendarDayRow struct {
	SemesterID string `db:"semester_id" json:"semester_id"`
	Code       string `db:"code" json:"code"`
	Name       string `db:"name" json:"name"`
	DayOrder   int    `db:"day_order" json:"day_order"`
}

// CalendarPeriodRow is one period of a semester's daily grid.
type CalendarPeriodRow struct {
	SemesterID  string `db:"semester_id" json:"semester_id"`
	Code        string `db:"code" json:"code"`
	Name        string `db:"name" json:"name"`
	PeriodOrder int    `db:"period_order" json:"period_order"`
	IsInterval  bool   `db:"is_interval" json:"is_interval"`
}

// ActivityRow is one schedulable course session.
type ActivityRow struct {
	ID                 string         `db:"id" json:"id"`
	SemesterID         string         `db:"semester_id" json:"semester_id"`
	Subject            string         `db:"subject" json:"subject"`
	Name               string         `db:"name" json:"name"`
	Duration           int            `db:"duration" json:"duration"`
	TeacherIDs         pq.StringArray `db:"teacher_ids" json:"teacher_ids"`
	GroupIDs           pq.StringArray `db:"group_ids" json:"group_ids"`
	RequiredAttributes pq.StringArray `db:"required_attributes" json:"required_attributes"`
}

// StudentGroupRow is a cohort attending activities together.
type StudentGroupRow struct {
	ID         string `db:"id" json:"id"`
	SemesterID string `db:"semester_id" json:"semester_id"`
	Name       string `db:"name" json:"name"`
	Size       int    `db:"size" json:"size"`
}

// SpaceRow is a bookable room.
type SpaceRow struct {
	ID         string         `db:"id" json:"id"`
	SemesterID string         `db:"semester_id" json:"semester_id"`
	Name       string         `db:"name" json:"name"`
	Capacity   int            `db:"capacity" json:"capacity"`
	Attributes pq.StringArray `db:"attributes" json:"attributes"`
}

// ConstraintRow is a stored scheduling rule; settings are type-specific JSONB.
type ConstraintRow struct {
	ID          string         `db:"id" json:"id"`
	SemesterID  string         `db:"semester_id" json:"semester_id"`
	Kind        string         `db:"kind" json:"kind"`
	Type        string         `db:"type" json:"type"`
	Weight      float64        `db:"weight" json:"weight"`
	ActivityIDs pq.StringArray `db:"activity_ids" json:"activity_ids"`
	Settings    types.JSONText `db:"settings" json:"settings"`
}
