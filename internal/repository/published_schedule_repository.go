package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// PublishedScheduleRepository persists the authoritative timetable per
// semester along with the per-semester algorithm selection.
type PublishedScheduleRepository struct {
	db *sqlx.DB
}

// NewPublishedScheduleRepository constructs the repository.
func NewPublishedScheduleRepository(db *sqlx.DB) *PublishedScheduleRepository {
	return &PublishedScheduleRepository{db: db}
}

// UpsertSelection records the chosen run for a semester. Re-selecting the
// same run is a no-op; a different run replaces the previous choice.
func (r *PublishedScheduleRepository) UpsertSelection(ctx context.Context, sel *models.AlgorithmSelection) error {
	if sel.SelectedAt.IsZero() {
		sel.SelectedAt = time.Now().UTC()
	}
	const query = `INSERT INTO algorithm_selections (semester_id, run_id, algorithm, selected_by, selected_at)
VALUES (:semester_id, :run_id, :algorithm, :selected_by, :selected_at)
ON CONFLICT (semester_id) DO UPDATE
SET run_id = EXCLUDED.run_id, algorithm = EXCLUDED.algorithm, selected_by = EXCLUDED.selected_by, selected_at = EXCLUDED.selected_at`
	if _, err := r.db.NamedExecContext(ctx, query, sel); err != nil {
		return fmt.Errorf("upsert algorithm selection: %w", err)
	}
	return nil
}

// GetSelection returns the semester's current selection.
func (r *PublishedScheduleRepository) GetSelection(ctx context.Context, semesterID string) (*models.AlgorithmSelection, error) {
	const query = `SELECT semester_id, run_id, algorithm, selected_by, selected_at
FROM algorithm_selections WHERE semester_id = $1`
	var sel models.AlgorithmSelection
	if err := r.db.GetContext(ctx, &sel, query, semesterID); err != nil {
		return nil, fmt.Errorf("get algorithm selection: %w", err)
	}
	return &sel, nil
}

// Publish replaces the semester's publication atomically: the previous
// schedule and its rows are removed in the same transaction that writes
// the new ones.
func (r *PublishedScheduleRepository) Publish(ctx context.Context, schedule *models.PublishedSchedule, assignments []models.PublishedAssignment) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.PublishedAt.IsZero() {
		schedule.PublishedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const deleteAssignments = `DELETE FROM published_assignments
WHERE schedule_id IN (SELECT id FROM published_schedules WHERE semester_id = $1)`
	if _, err := tx.ExecContext(ctx, deleteAssignments, schedule.SemesterID); err != nil {
		return fmt.Errorf("delete previous assignments: %w", err)
	}
	const deleteSchedule = `DELETE FROM published_schedules WHERE semester_id = $1`
	if _, err := tx.ExecContext(ctx, deleteSchedule, schedule.SemesterID); err != nil {
		return fmt.Errorf("delete previous schedule: %w", err)
	}

	const insertSchedule = `INSERT INTO published_schedules (id, semester_id, run_id, algorithm, metrics, published_by, published_at)
VALUES (:id, :semester_id, :run_id, :algorithm, :metrics, :published_by, :published_at)`
	if _, err := tx.NamedExecContext(ctx, insertSchedule, schedule); err != nil {
		return fmt.Errorf("insert published schedule: %w", err)
	}

	const insertAssignment = `INSERT INTO published_assignments (id, schedule_id, activity_id, subject, day, start_period, duration, space_id)
VALUES (:id, :schedule_id, :activity_id, :subject, :day, :start_period, :duration, :space_id)`
	for i := range assignments {
		if assignments[i].ID == "" {
			assignments[i].ID = uuid.NewString()
		}
		assignments[i].ScheduleID = schedule.ID
		if _, err := tx.NamedExecContext(ctx, insertAssignment, assignments[i]); err != nil {
			return fmt.Errorf("insert assignment %s: %w", assignments[i].ActivityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}

// GetBySemester returns the semester's current publication and its rows.
func (r *PublishedScheduleRepository) GetBySemester(ctx context.Context, semesterID string) (*models.PublishedSchedule, []models.PublishedAssignment, error) {
	const scheduleQuery = `SELECT id, semester_id, run_id, algorithm, metrics, published_by, published_at
FROM published_schedules WHERE semester_id = $1`
	var schedule models.PublishedSchedule
	if err := r.db.GetContext(ctx, &schedule, scheduleQuery, semesterID); err != nil {
		return nil, nil, fmt.Errorf("get published schedule: %w", err)
	}

	const assignmentQuery = `SELECT id, schedule_id, activity_id, subject, day, start_period, duration, space_id
FROM published_assignments WHERE schedule_id = $1 ORDER BY day ASC, start_period ASC, activity_id ASC`
	var assignments []models.PublishedAssignment
	if err := r.db.SelectContext(ctx, &assignments, assignmentQuery, schedule.ID); err != nil {
		return nil, nil, fmt.Errorf("list published assignments: %w", err)
	}
	return &schedule, assignments, nil
}
