package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/runner"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type datasetLoaderStub struct {
	dataset *domain.Dataset
	err     error
}

func (l *datasetLoaderStub) Load(ctx context.Context, semesterID string) (*domain.Dataset, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.dataset, nil
}

type runStoreStub struct {
	mu   sync.Mutex
	runs map[string]*models.OptimizationRun
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: map[string]*models.OptimizationRun{}}
}

func (r *runStoreStub) Create(ctx context.Context, run *models.OptimizationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *runStoreStub) GetByID(ctx context.Context, id string) (*models.OptimizationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *run
	return &clone, nil
}

func (r *runStoreStub) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok && run.Status == models.RunStatusPending {
		run.Status = models.RunStatusRunning
		run.StartedAt = &startedAt
	}
	return nil
}

func (r *runStoreStub) Finish(ctx context.Context, id string, params repository.FinishRunParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	run.Status = params.Status
	run.Metrics = params.Metrics
	run.Result = params.Result
	run.Incomplete = params.Incomplete
	run.DroppedEvents = params.DroppedEvents
	run.ErrorMessage = params.ErrorMessage
	run.FinishedAt = &params.FinishedAt
	return nil
}

func (r *runStoreStub) List(ctx context.Context, filter models.RunFilter) ([]models.OptimizationRun, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OptimizationRun
	for _, run := range r.runs {
		if filter.SemesterID != "" && run.SemesterID != filter.SemesterID {
			continue
		}
		out = append(out, *run)
	}
	return out, len(out), nil
}

func (r *runStoreStub) FailInterrupted(ctx context.Context, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, run := range r.runs {
		if !run.Status.Terminal() {
			run.Status = models.RunStatusFailed
			run.ErrorMessage = &message
			affected++
		}
	}
	return affected, nil
}

func (r *runStoreStub) statuses() map[string]models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.RunStatus, len(r.runs))
	for id, run := range r.runs {
		out[id] = run.Status
	}
	return out
}

func optimizerTestDataset() *domain.Dataset {
	cal := domain.Calendar{
		Days: []domain.Day{
			{Code: "MON", Order: 0},
			{Code: "TUE", Order: 1},
			{Code: "WED", Order: 2},
		},
		Periods: []domain.Period{
			{Code: "P1", Order: 0},
			{Code: "P2", Order: 1},
			{Code: "P3", Order: 2},
		},
	}
	return domain.NewDataset(cal,
		[]domain.Activity{
			{ID: "act-1", Subject: "math", Duration: 1, TeacherIDs: []string{"t-1"}, GroupIDs: []string{"grp-1"}},
			{ID: "act-2", Subject: "physics", Duration: 1, TeacherIDs: []string{"t-2"}, GroupIDs: []string{"grp-1"}},
		},
		[]domain.StudentGroup{{ID: "grp-1", Size: 20}},
		[]domain.Space{{ID: "room-a", Capacity: 30}, {ID: "room-b", Capacity: 30}},
		nil,
	)
}

func newOptimizerFixture(t *testing.T, loader *datasetLoaderStub) (*OptimizerService, *runStoreStub) {
	t.Helper()
	orch := runner.New(context.Background(), runner.Config{})
	t.Cleanup(orch.Stop)
	store := newRunStoreStub()
	svc := NewOptimizerService(loader, store, orch, nil, nil, nil, 0)
	return svc, store
}

func TestStartRunLaunchesAllAlgorithmsByDefault(t *testing.T) {
	svc, store := newOptimizerFixture(t, &datasetLoaderStub{dataset: optimizerTestDataset()})

	resp, err := svc.StartRun(context.Background(), dto.StartRunRequest{SemesterID: "sem-1"}, "admin-1")
	require.NoError(t, err)
	require.Len(t, resp.Runs, 3)

	seen := map[string]bool{}
	for _, run := range resp.Runs {
		assert.Equal(t, "sem-1", run.SemesterID)
		assert.Equal(t, models.RunStatusPending, run.Status)
		seen[run.Algorithm] = true
	}
	assert.Len(t, seen, 3, "one run per algorithm")

	require.Eventually(t, func() bool {
		for _, status := range store.statuses() {
			if !status.Terminal() {
				return false
			}
		}
		return true
	}, 30*time.Second, 50*time.Millisecond)

	for id := range store.statuses() {
		run, err := store.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSucceeded, run.Status)
		require.NotNil(t, run.Metrics)
		assert.Equal(t, 0, run.Metrics.HardViolations)
		require.NotNil(t, run.Result)
		assert.Len(t, run.Result.Assignments, 2)
		assert.NotNil(t, run.FinishedAt)
	}
}

func TestStartRunRejectsMissingSemester(t *testing.T) {
	svc, _ := newOptimizerFixture(t, &datasetLoaderStub{dataset: optimizerTestDataset()})
	_, err := svc.StartRun(context.Background(), dto.StartRunRequest{}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStartRunRejectsInvalidDataset(t *testing.T) {
	// No spaces: structurally impossible, rejected before any run starts.
	bad := domain.NewDataset(domain.Calendar{
		Days:    []domain.Day{{Code: "MON"}},
		Periods: []domain.Period{{Code: "P1"}},
	}, nil, nil, nil, nil)
	svc, store := newOptimizerFixture(t, &datasetLoaderStub{dataset: bad})

	_, err := svc.StartRun(context.Background(), dto.StartRunRequest{SemesterID: "sem-1"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.statuses(), "no run rows for rejected requests")
}

func TestStartRunUnknownDatasetIsNotFound(t *testing.T) {
	svc, _ := newOptimizerFixture(t, &datasetLoaderStub{err: sql.ErrNoRows})
	_, err := svc.StartRun(context.Background(), dto.StartRunRequest{SemesterID: "sem-x"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetResultLifecycleErrors(t *testing.T) {
	svc, store := newOptimizerFixture(t, &datasetLoaderStub{dataset: optimizerTestDataset()})

	require.NoError(t, store.Create(context.Background(), &models.OptimizationRun{
		ID: "run-pending", SemesterID: "sem-1", Algorithm: "genetic",
		Status: models.RunStatusPending,
	}))
	_, err := svc.GetResult(context.Background(), "run-pending")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRunNotReady.Code, appErrors.FromError(err).Code)

	msg := "population collapsed"
	require.NoError(t, store.Create(context.Background(), &models.OptimizationRun{
		ID: "run-failed", SemesterID: "sem-1", Algorithm: "genetic",
		Status: models.RunStatusFailed, ErrorMessage: &msg,
	}))
	_, err = svc.GetResult(context.Background(), "run-failed")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRunFailed.Code, appErr.Code)
	assert.Equal(t, msg, appErr.Message)

	_, err = svc.GetResult(context.Background(), "run-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCancelRunAlreadyTerminal(t *testing.T) {
	svc, store := newOptimizerFixture(t, &datasetLoaderStub{dataset: optimizerTestDataset()})
	require.NoError(t, store.Create(context.Background(), &models.OptimizationRun{
		ID: "run-done", SemesterID: "sem-1", Algorithm: "constraint",
		Status: models.RunStatusSucceeded,
	}))

	err := svc.CancelRun(context.Background(), "run-done")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStreamProgressForTerminalRunWithoutHandle(t *testing.T) {
	svc, store := newOptimizerFixture(t, &datasetLoaderStub{dataset: optimizerTestDataset()})
	finished := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), &models.OptimizationRun{
		ID: "run-old", SemesterID: "sem-1", Algorithm: "genetic",
		Status: models.RunStatusSucceeded, FinishedAt: &finished,
	}))

	events, cancel, err := svc.StreamProgress(context.Background(), "run-old")
	require.NoError(t, err)
	defer cancel()

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, "run-old", ev.RunID)
	assert.Equal(t, "terminal", ev.Level)

	_, ok = <-events
	assert.False(t, ok, "stream closes after the terminal event")
}

func TestRecoverInterrupted(t *testing.T) {
	svc, store := newOptimizerFixture(t, &datasetLoaderStub{dataset: optimizerTestDataset()})
	require.NoError(t, store.Create(context.Background(), &models.OptimizationRun{
		ID: "run-stale", SemesterID: "sem-1", Algorithm: "genetic",
		Status: models.RunStatusRunning,
	}))

	svc.RecoverInterrupted(context.Background())

	run, err := store.GetByID(context.Background(), "run-stale")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "interrupted by process restart", *run.ErrorMessage)
}
