package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type terminalRunListerStub struct {
	runs map[string]*models.OptimizationRun
}

func (r *terminalRunListerStub) GetByID(ctx context.Context, id string) (*models.OptimizationRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return run, nil
}

func (r *terminalRunListerStub) ListTerminalBySemester(ctx context.Context, semesterID string) ([]models.OptimizationRun, error) {
	var out []models.OptimizationRun
	for _, run := range r.runs {
		if run.SemesterID == semesterID && run.Status.Terminal() && run.Status != models.RunStatusFailed {
			out = append(out, *run)
		}
	}
	return out, nil
}

type selectionStoreStub struct {
	selections map[string]*models.AlgorithmSelection
	upserts    int
}

func (s *selectionStoreStub) UpsertSelection(ctx context.Context, sel *models.AlgorithmSelection) error {
	if s.selections == nil {
		s.selections = map[string]*models.AlgorithmSelection{}
	}
	clone := *sel
	s.selections[sel.SemesterID] = &clone
	s.upserts++
	return nil
}

func (s *selectionStoreStub) GetSelection(ctx context.Context, semesterID string) (*models.AlgorithmSelection, error) {
	sel, ok := s.selections[semesterID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sel, nil
}

type cacheStub struct {
	entries    map[string][]byte
	hits, sets int
	deletes    []string
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = map[string][]byte{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.sets++
	return nil
}

func (c *cacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.deletes = append(c.deletes, pattern)
	for key := range c.entries {
		delete(c.entries, key)
	}
	return nil
}

func metricsFixture(hard int, soft float64, unassigned int) *models.RunMetrics {
	return &models.RunMetrics{HardViolations: hard, SoftScore: soft, Unassigned: unassigned}
}

func scorerRunsFixture() *terminalRunListerStub {
	return &terminalRunListerStub{runs: map[string]*models.OptimizationRun{
		"run-ga": {
			ID: "run-ga", SemesterID: "sem-1", Algorithm: "genetic",
			Status: models.RunStatusSucceeded, Metrics: metricsFixture(0, 0.9, 0),
		},
		"run-co": {
			ID: "run-co", SemesterID: "sem-1", Algorithm: "constraint",
			Status: models.RunStatusSucceeded, Metrics: metricsFixture(0, 0.7, 0),
		},
		"run-rl": {
			ID: "run-rl", SemesterID: "sem-1", Algorithm: "reinforcement",
			Status: models.RunStatusCancelled, Metrics: metricsFixture(2, 0.95, 1), Incomplete: true,
		},
		"run-failed": {
			ID: "run-failed", SemesterID: "sem-1", Algorithm: "genetic",
			Status: models.RunStatusFailed,
		},
		"run-other": {
			ID: "run-other", SemesterID: "sem-2", Algorithm: "genetic",
			Status: models.RunStatusSucceeded, Metrics: metricsFixture(0, 1.0, 0),
		},
	}}
}

func TestLeaderboardRanksLexicographically(t *testing.T) {
	runs := scorerRunsFixture()
	selections := &selectionStoreStub{selections: map[string]*models.AlgorithmSelection{
		"sem-1": {SemesterID: "sem-1", RunID: "run-co", Algorithm: "constraint"},
	}}
	svc := NewScorerService(runs, selections, nil, nil, nil, 0)

	resp, err := svc.Leaderboard(context.Background(), "sem-1")
	require.NoError(t, err)
	require.Len(t, resp.Entries, 3, "failed runs and other semesters are excluded")

	assert.Equal(t, "run-ga", resp.Entries[0].RunID, "higher soft score wins at equal hard count")
	assert.Equal(t, "run-co", resp.Entries[1].RunID)
	assert.Equal(t, "run-rl", resp.Entries[2].RunID, "hard violations dominate soft score")

	for i, entry := range resp.Entries {
		assert.Equal(t, i+1, entry.Rank)
	}
	assert.False(t, resp.Entries[0].Selected)
	assert.True(t, resp.Entries[1].Selected)
	assert.True(t, resp.Entries[2].Incomplete)
}

func TestLeaderboardUsesCache(t *testing.T) {
	runs := scorerRunsFixture()
	cache := &cacheStub{}
	svc := NewScorerService(runs, &selectionStoreStub{}, cache, nil, nil, time.Minute)

	first, err := svc.Leaderboard(context.Background(), "sem-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from cache without touching the store.
	runs.runs = nil
	second, err := svc.Leaderboard(context.Background(), "sem-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.Entries, second.Entries)
}

func TestSelectAlgorithmRecordsAndInvalidates(t *testing.T) {
	runs := scorerRunsFixture()
	selections := &selectionStoreStub{}
	cache := &cacheStub{entries: map[string][]byte{"optimizer:leaderboard:sem-1": []byte(`{}`)}}
	svc := NewScorerService(runs, selections, cache, nil, nil, 0)

	resp, err := svc.SelectAlgorithm(context.Background(), dto.SelectAlgorithmRequest{
		SemesterID: "sem-1", RunID: "run-ga",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "genetic", resp.Algorithm)
	assert.Equal(t, "admin-1", resp.SelectedBy)
	assert.Equal(t, 1, selections.upserts)
	assert.Empty(t, cache.entries, "selection invalidates the cached leaderboard")

	// Re-selecting the same run is a no-op.
	again, err := svc.SelectAlgorithm(context.Background(), dto.SelectAlgorithmRequest{
		SemesterID: "sem-1", RunID: "run-ga",
	}, "admin-2")
	require.NoError(t, err)
	assert.Equal(t, resp.SelectedAt, again.SelectedAt)
	assert.Equal(t, 1, selections.upserts)

	// Switching to another succeeded run replaces the choice.
	_, err = svc.SelectAlgorithm(context.Background(), dto.SelectAlgorithmRequest{
		SemesterID: "sem-1", RunID: "run-co",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, selections.upserts)
	assert.Equal(t, "run-co", selections.selections["sem-1"].RunID)
}

func TestSelectAlgorithmRejections(t *testing.T) {
	svc := NewScorerService(scorerRunsFixture(), &selectionStoreStub{}, nil, nil, nil, 0)

	cases := []struct {
		name string
		req  dto.SelectAlgorithmRequest
		code string
	}{
		{"missing fields", dto.SelectAlgorithmRequest{}, appErrors.ErrValidation.Code},
		{"unknown run", dto.SelectAlgorithmRequest{SemesterID: "sem-1", RunID: "run-nope"}, appErrors.ErrNotFound.Code},
		{"wrong semester", dto.SelectAlgorithmRequest{SemesterID: "sem-1", RunID: "run-other"}, appErrors.ErrValidation.Code},
		{"cancelled run", dto.SelectAlgorithmRequest{SemesterID: "sem-1", RunID: "run-rl"}, appErrors.ErrRunNotSelectable.Code},
		{"failed run", dto.SelectAlgorithmRequest{SemesterID: "sem-1", RunID: "run-failed"}, appErrors.ErrRunNotSelectable.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SelectAlgorithm(context.Background(), tc.req, "admin-1")
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestGetSelectionNotFound(t *testing.T) {
	svc := NewScorerService(scorerRunsFixture(), &selectionStoreStub{}, nil, nil, nil, 0)
	_, err := svc.GetSelection(context.Background(), "sem-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMetricsLessOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b models.RunMetrics
		less bool
	}{
		{"fewer hard wins", models.RunMetrics{HardViolations: 0, SoftScore: 0.1}, models.RunMetrics{HardViolations: 1, SoftScore: 0.9}, true},
		{"soft breaks hard tie", models.RunMetrics{SoftScore: 0.8}, models.RunMetrics{SoftScore: 0.6}, true},
		{"unassigned breaks soft tie", models.RunMetrics{SoftScore: 0.5, Unassigned: 1}, models.RunMetrics{SoftScore: 0.5, Unassigned: 2}, true},
		{"equal is not less", models.RunMetrics{SoftScore: 0.5}, models.RunMetrics{SoftScore: 0.5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.less, metricsLess(tc.a, tc.b))
		})
	}
}
