package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// RunRepository persists optimization run records.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, semester_id, algorithm, status, params, metrics, result, incomplete, dropped_events, error_message, created_by, created_at, started_at, finished_at`

// Create inserts a new run row.
func (r *RunRepository) Create(ctx context.Context, run *models.OptimizationRun) error {
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO optimization_runs (` + runColumns + `)
VALUES (:id, :semester_id, :algorithm, :status, :params, :metrics, :result, :incomplete, :dropped_events, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create optimization run: %w", err)
	}
	return nil
}

// GetByID returns one run row.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.OptimizationRun, error) {
	const query = `SELECT ` + runColumns + ` FROM optimization_runs WHERE id = $1`
	var run models.OptimizationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get optimization run: %w", err)
	}
	return &run, nil
}

// MarkRunning flips a pending run to RUNNING with its start timestamp.
func (r *RunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE optimization_runs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, models.RunStatusRunning, startedAt, id, models.RunStatusPending); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

// FinishRunParams carries the terminal snapshot for a run.
type FinishRunParams struct {
	Status        models.RunStatus
	Metrics       *models.RunMetrics
	Result        *models.RunResult
	Incomplete    bool
	DroppedEvents int
	ErrorMessage  *string
	FinishedAt    time.Time
}

// Finish records a run's terminal state. Rows already terminal are left
// untouched.
func (r *RunRepository) Finish(ctx context.Context, id string, params FinishRunParams) error {
	const query = `UPDATE optimization_runs
SET status = $1, metrics = $2, result = $3, incomplete = $4, dropped_events = $5, error_message = $6, finished_at = $7
WHERE id = $8 AND status IN ($9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		params.Status, params.Metrics, params.Result, params.Incomplete,
		params.DroppedEvents, params.ErrorMessage, params.FinishedAt,
		id, models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("finish optimization run: %w", err)
	}
	return nil
}

// List returns run rows matching the filter plus the total count.
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.OptimizationRun, int, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	argPos := 1

	if filter.SemesterID != "" {
		where = append(where, fmt.Sprintf("semester_id = $%d", argPos))
		args = append(args, filter.SemesterID)
		argPos++
	}
	if filter.Algorithm != "" {
		where = append(where, fmt.Sprintf("algorithm = $%d", argPos))
		args = append(args, filter.Algorithm)
		argPos++
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM optimization_runs" + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count optimization runs: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s FROM optimization_runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		runColumns, clause, argPos, argPos+1)
	args = append(args, size, (page-1)*size)

	var runs []models.OptimizationRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list optimization runs: %w", err)
	}
	return runs, total, nil
}

// ListTerminalBySemester returns the semester's finished runs for ranking.
func (r *RunRepository) ListTerminalBySemester(ctx context.Context, semesterID string) ([]models.OptimizationRun, error) {
	const query = `SELECT ` + runColumns + ` FROM optimization_runs
WHERE semester_id = $1 AND status IN ($2, $3) ORDER BY created_at DESC`
	var runs []models.OptimizationRun
	err := r.db.SelectContext(ctx, &runs, query, semesterID,
		models.RunStatusSucceeded, models.RunStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("list terminal runs: %w", err)
	}
	return runs, nil
}

// FailInterrupted marks runs left non-terminal by a previous process as
// failed. Called once on startup.
func (r *RunRepository) FailInterrupted(ctx context.Context, message string) (int64, error) {
	const query = `UPDATE optimization_runs
SET status = $1, error_message = $2, finished_at = $3
WHERE status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query,
		models.RunStatusFailed, message, time.Now().UTC(),
		models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
