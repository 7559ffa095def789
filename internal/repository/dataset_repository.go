package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// DatasetRepository loads the immutable scheduling input for a semester.
type DatasetRepository struct {
	db *sqlx.DB
}

// NewDatasetRepository constructs the repository.
func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// Load assembles the full optimization dataset for a semester. Rows are
// fetched in stable order so the assembled arenas are reproducible.
func (r *DatasetRepository) Load(ctx context.Context, semesterID string) (*domain.Dataset, error) {
	calendar, err := r.loadCalendar(ctx, semesterID)
	if err != nil {
		return nil, err
	}

	var activityRows []models.ActivityRow
	const activityQuery = `SELECT id, semester_id, subject, name, duration, teacher_ids, group_ids, required_attributes
FROM timetable_activities WHERE semester_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &activityRows, activityQuery, semesterID); err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}

	var groupRows []models.StudentGroupRow
	const groupQuery = `SELECT id, semester_id, name, size
FROM student_groups WHERE semester_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &groupRows, groupQuery, semesterID); err != nil {
		return nil, fmt.Errorf("load student groups: %w", err)
	}

	var spaceRows []models.SpaceRow
	const spaceQuery = `SELECT id, semester_id, name, capacity, attributes
FROM spaces WHERE semester_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &spaceRows, spaceQuery, semesterID); err != nil {
		return nil, fmt.Errorf("load spaces: %w", err)
	}

	var constraintRows []models.ConstraintRow
	const constraintQuery = `SELECT id, semester_id, kind, type, weight, activity_ids, settings
FROM timetable_constraints WHERE semester_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &constraintRows, constraintQuery, semesterID); err != nil {
		return nil, fmt.Errorf("load constraints: %w", err)
	}

	activities := make([]domain.Activity, 0, len(activityRows))
	for _, row := range activityRows {
		activities = append(activities, domain.Activity{
			ID:                 row.ID,
			Subject:            row.Subject,
			Name:               row.Name,
			Duration:           row.Duration,
			TeacherIDs:         row.TeacherIDs,
			GroupIDs:           row.GroupIDs,
			RequiredAttributes: row.RequiredAttributes,
		})
	}

	groups := make([]domain.StudentGroup, 0, len(groupRows))
	for _, row := range groupRows {
		groups = append(groups, domain.StudentGroup{ID: row.ID, Size: row.Size})
	}

	spaces := make([]domain.Space, 0, len(spaceRows))
	for _, row := range spaceRows {
		spaces = append(spaces, domain.Space{
			ID:         row.ID,
			Name:       row.Name,
			Capacity:   row.Capacity,
			Attributes: row.Attributes,
		})
	}

	constraints := make([]domain.Constraint, 0, len(constraintRows))
	for _, row := range constraintRows {
		var settings domain.ConstraintSettings
		if len(row.Settings) > 0 {
			if err := json.Unmarshal(row.Settings, &settings); err != nil {
				return nil, fmt.Errorf("constraint %s: decode settings: %w", row.ID, err)
			}
		}
		constraints = append(constraints, domain.Constraint{
			ID:          row.ID,
			Kind:        domain.ConstraintKind(row.Kind),
			Type:        domain.ConstraintType(row.Type),
			Weight:      row.Weight,
			ActivityIDs: row.ActivityIDs,
			Settings:    settings,
		})
	}

	return domain.NewDataset(calendar, activities, groups, spaces, constraints), nil
}

func (r *DatasetRepository) loadCalendar(ctx context.Context, semesterID string) (domain.Calendar, error) {
	var dayRows []models.CalendarDayRow
	const dayQuery = `SELECT semester_id, code, name, day_order
FROM calendar_days WHERE semester_id = $1 ORDER BY day_order ASC`
	if err := r.db.SelectContext(ctx, &dayRows, dayQuery, semesterID); err != nil {
		return domain.Calendar{}, fmt.Errorf("load calendar days: %w", err)
	}

	var periodRows []models.CalendarPeriodRow
	const periodQuery = `SELECT semester_id, code, name, period_order, is_interval
FROM calendar_periods WHERE semester_id = $1 ORDER BY period_order ASC`
	if err := r.db.SelectContext(ctx, &periodRows, periodQuery, semesterID); err != nil {
		return domain.Calendar{}, fmt.Errorf("load calendar periods: %w", err)
	}

	sort.SliceStable(dayRows, func(i, j int) bool { return dayRows[i].DayOrder < dayRows[j].DayOrder })
	sort.SliceStable(periodRows, func(i, j int) bool { return periodRows[i].PeriodOrder < periodRows[j].PeriodOrder })

	cal := domain.Calendar{
		Days:    make([]domain.Day, 0, len(dayRows)),
		Periods: make([]domain.Period, 0, len(periodRows)),
	}
	for _, row := range dayRows {
		cal.Days = append(cal.Days, domain.Day{Code: row.Code, Name: row.Name, Order: row.DayOrder})
	}
	for _, row := range periodRows {
		cal.Periods = append(cal.Periods, domain.Period{
			Code:       row.Code,
			Name:       row.Name,
			Order:      row.PeriodOrder,
			IsInterval: row.IsInterval,
		})
	}
	return cal, nil
}
