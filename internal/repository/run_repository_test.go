package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/strategy"
)

func newRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func runRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "semester_id", "algorithm", "status", "params", "metrics", "result",
		"incomplete", "dropped_events", "error_message", "created_by", "created_at",
		"started_at", "finished_at",
	})
}

func TestRunRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO optimization_runs")).
		WithArgs("run-1", "sem-1", "genetic", "PENDING", sqlmock.AnyArg(), nil, nil,
			false, 0, nil, "admin-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.OptimizationRun{
		ID:         "run-1",
		SemesterID: "sem-1",
		Algorithm:  "genetic",
		Params:     models.RunParams{Params: strategy.Params{Seed: 42}},
		CreatedBy:  "admin-1",
	}
	require.NoError(t, repo.Create(context.Background(), run))
	require.Equal(t, models.RunStatusPending, run.Status)

	rows := runRows().AddRow("run-1", "sem-1", "genetic", "SUCCEEDED",
		`{"seed":42}`, `{"hard_violations":0,"soft_score":0.9}`, `{"assignments":[]}`,
		false, 0, nil, "admin-1", time.Now(), time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM optimization_runs WHERE id = \\$1").
		WithArgs("run-1").
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "genetic", fetched.Algorithm)
	require.Equal(t, int64(42), fetched.Params.Seed)
	require.NotNil(t, fetched.Metrics)
	require.InDelta(t, 0.9, fetched.Metrics.SoftScore, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryFinishOnlyTouchesActiveRows(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	finishedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE optimization_runs")).
		WithArgs("SUCCEEDED", sqlmock.AnyArg(), sqlmock.AnyArg(), true, 3, nil, finishedAt,
			"run-1", "PENDING", "RUNNING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Finish(context.Background(), "run-1", FinishRunParams{
		Status:        models.RunStatusSucceeded,
		Metrics:       &models.RunMetrics{SoftScore: 0.8},
		Result:        &models.RunResult{},
		Incomplete:    true,
		DroppedEvents: 3,
		FinishedAt:    finishedAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	status := models.RunStatusSucceeded
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM optimization_runs WHERE semester_id = $1 AND status = $2")).
		WithArgs("sem-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := runRows().AddRow("run-1", "sem-1", "constraint", "SUCCEEDED",
		`{}`, nil, nil, false, 0, nil, "admin-1", time.Now(), nil, nil)
	mock.ExpectQuery("SELECT .+ FROM optimization_runs WHERE semester_id = \\$1 AND status = \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("sem-1", status, 20, 0).
		WillReturnRows(rows)

	runs, total, err := repo.List(context.Background(), models.RunFilter{
		SemesterID: "sem-1",
		Status:     &status,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, runs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepositoryFailInterrupted(t *testing.T) {
	db, mock, cleanup := newRunRepoMock(t)
	defer cleanup()
	repo := NewRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE optimization_runs")).
		WithArgs("FAILED", "process restarted", sqlmock.AnyArg(), "PENDING", "RUNNING").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.FailInterrupted(context.Background(), "process restarted")
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}
