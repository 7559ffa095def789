package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type terminalRunLister interface {
	GetByID(ctx context.Context, id string) (*models.OptimizationRun, error)
	ListTerminalBySemester(ctx context.Context, semesterID string) ([]models.OptimizationRun, error)
}

type selectionStore interface {
	UpsertSelection(ctx context.Context, sel *models.AlgorithmSelection) error
	GetSelection(ctx context.Context, semesterID string) (*models.AlgorithmSelection, error)
}

type leaderboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// ScorerService ranks a semester's terminal runs and records the chosen
// algorithm. Ranking is lexicographic: fewer hard violations first, higher
// soft score second, fewer unassigned activities last.
type ScorerService struct {
	runs       terminalRunLister
	selections selectionStore
	cache      leaderboardCache
	validator  *validator.Validate
	logger     *zap.Logger
	cacheTTL   time.Duration
}

// NewScorerService constructs the scorer service.
func NewScorerService(runs terminalRunLister, selections selectionStore, cache leaderboardCache, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *ScorerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &ScorerService{
		runs:       runs,
		selections: selections,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		cacheTTL:   cacheTTL,
	}
}

func leaderboardCacheKey(semesterID string) string {
	return fmt.Sprintf("optimizer:leaderboard:%s", semesterID)
}

// Leaderboard returns the ranked comparison of the semester's runs.
func (s *ScorerService) Leaderboard(ctx context.Context, semesterID string) (*dto.LeaderboardResponse, error) {
	if semesterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semesterId is required")
	}

	key := leaderboardCacheKey(semesterID)
	if s.cache != nil {
		var cached dto.LeaderboardResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	runs, err := s.runs.ListTerminalBySemester(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list terminal runs")
	}

	ranked := make([]models.OptimizationRun, 0, len(runs))
	for _, run := range runs {
		if run.Metrics != nil {
			ranked = append(ranked, run)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return metricsLess(*ranked[i].Metrics, *ranked[j].Metrics)
	})

	selectedRunID := ""
	if sel, err := s.selections.GetSelection(ctx, semesterID); err == nil {
		selectedRunID = sel.RunID
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("selection lookup failed", zap.String("semester_id", semesterID), zap.Error(err))
	}

	resp := &dto.LeaderboardResponse{
		SemesterID: semesterID,
		Entries:    make([]dto.LeaderboardEntry, 0, len(ranked)),
	}
	for i, run := range ranked {
		resp.Entries = append(resp.Entries, dto.LeaderboardEntry{
			Rank:       i + 1,
			RunID:      run.ID,
			Algorithm:  run.Algorithm,
			Incomplete: run.Incomplete,
			Metrics:    *run.Metrics,
			Selected:   run.ID == selectedRunID,
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.logger.Warn("leaderboard cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// SelectAlgorithm records the run an administrator picked for the
// semester. Re-selecting the current run is a no-op.
func (s *ScorerService) SelectAlgorithm(ctx context.Context, req dto.SelectAlgorithmRequest, actorID string) (*dto.SelectionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection request")
	}

	run, err := s.runs.GetByID(ctx, req.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get run")
	}
	if run.SemesterID != req.SemesterID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run does not belong to the semester")
	}
	if run.Status != models.RunStatusSucceeded {
		return nil, appErrors.Clone(appErrors.ErrRunNotSelectable,
			fmt.Sprintf("run is %s; only succeeded runs can be selected", run.Status))
	}

	if existing, err := s.selections.GetSelection(ctx, req.SemesterID); err == nil && existing.RunID == req.RunID {
		return selectionResponse(existing), nil
	}

	sel := &models.AlgorithmSelection{
		SemesterID: req.SemesterID,
		RunID:      run.ID,
		Algorithm:  run.Algorithm,
		SelectedBy: actorID,
		SelectedAt: time.Now().UTC(),
	}
	if err := s.selections.UpsertSelection(ctx, sel); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "record selection")
	}
	s.invalidate(ctx, req.SemesterID)

	s.logger.Info("algorithm selected",
		zap.String("semester_id", req.SemesterID),
		zap.String("run_id", run.ID),
		zap.String("algorithm", run.Algorithm))
	return selectionResponse(sel), nil
}

// GetSelection returns the semester's current selection.
func (s *ScorerService) GetSelection(ctx context.Context, semesterID string) (*dto.SelectionResponse, error) {
	sel, err := s.selections.GetSelection(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no algorithm selected for semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get selection")
	}
	return selectionResponse(sel), nil
}

func (s *ScorerService) invalidate(ctx context.Context, semesterID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, leaderboardCacheKey(semesterID)); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
}

func selectionResponse(sel *models.AlgorithmSelection) *dto.SelectionResponse {
	return &dto.SelectionResponse{
		SemesterID: sel.SemesterID,
		RunID:      sel.RunID,
		Algorithm:  sel.Algorithm,
		SelectedBy: sel.SelectedBy,
		SelectedAt: sel.SelectedAt,
	}
}

// metricsLess orders stored metrics the same way live evaluations are
// compared: hard violations ascending, soft score descending, unassigned
// ascending.
func metricsLess(a, b models.RunMetrics) bool {
	if a.HardViolations != b.HardViolations {
		return a.HardViolations < b.HardViolations
	}
	if a.SoftScore != b.SoftScore {
		return a.SoftScore > b.SoftScore
	}
	return a.Unassigned < b.Unassigned
}
