package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/runner"
	"github.com/noah-isme/uni-timetable-api/internal/strategy"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
)

type datasetLoader interface {
	Load(ctx context.Context, semesterID string) (*domain.Dataset, error)
}

type runStore interface {
	Create(ctx context.Context, run *models.OptimizationRun) error
	GetByID(ctx context.Context, id string) (*models.OptimizationRun, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	Finish(ctx context.Context, id string, params repository.FinishRunParams) error
	List(ctx context.Context, filter models.RunFilter) ([]models.OptimizationRun, int, error)
	FailInterrupted(ctx context.Context, message string) (int64, error)
}

// OptimizerService launches optimization runs, tracks their lifecycle in
// storage, and exposes progress streams and results.
type OptimizerService struct {
	datasets         datasetLoader
	runs             runStore
	runner           *runner.Orchestrator
	optimizer        *MetricsService
	validator        *validator.Validate
	logger           *zap.Logger
	defaultWallClock time.Duration
}

// NewOptimizerService constructs the optimizer service.
func NewOptimizerService(
	datasets datasetLoader,
	runs runStore,
	orch *runner.Orchestrator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	defaultWallClock time.Duration,
) *OptimizerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimizerService{
		datasets:         datasets,
		runs:             runs,
		runner:           orch,
		optimizer:        metrics,
		validator:        validate,
		logger:           logger,
		defaultWallClock: defaultWallClock,
	}
}

// RecoverInterrupted fails runs a previous process left unfinished. Called
// once on startup before new runs are accepted.
func (s *OptimizerService) RecoverInterrupted(ctx context.Context) {
	affected, err := s.runs.FailInterrupted(ctx, "interrupted by process restart")
	if err != nil {
		s.logger.Warn("failed to recover interrupted runs", zap.Error(err))
		return
	}
	if affected > 0 {
		s.logger.Info("failed interrupted runs from previous process", zap.Int64("count", affected))
	}
}

// StartRun validates the request synchronously, then launches one run per
// requested algorithm. Dataset problems surface here, before any run is
// created; strategy failures surface on the individual run.
func (s *OptimizerService) StartRun(ctx context.Context, req dto.StartRunRequest, actorID string) (*dto.StartRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimization request")
	}

	loadStart := time.Now()
	dataset, err := s.datasets.Load(ctx, req.SemesterID)
	if s.optimizer != nil {
		s.optimizer.ObserveDBQuery("dataset_load", time.Since(loadStart))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester dataset not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load dataset")
	}
	if err := dataset.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	algorithms := req.Algorithms
	if len(algorithms) == 0 {
		algorithms = strategy.Algorithms()
	}
	params := toStrategyParams(req.Params)
	if params.WallClock <= 0 {
		params.WallClock = s.defaultWallClock
	}

	specs := make([]runner.RunSpec, 0, len(algorithms))
	for _, algorithm := range algorithms {
		specs = append(specs, runner.RunSpec{Algorithm: algorithm, Dataset: dataset, Params: params})
	}

	// Runs outlive the HTTP request that started them.
	handles, summaryCh, err := s.runner.StartBatch(context.Background(), specs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "start optimization runs")
	}

	resp := &dto.StartRunResponse{Runs: make([]dto.RunResponse, 0, len(handles))}
	for _, h := range handles {
		run := &models.OptimizationRun{
			ID:         h.ID,
			SemesterID: req.SemesterID,
			Algorithm:  h.Algorithm,
			Status:     models.RunStatusPending,
			Params:     models.RunParams{Params: params},
			CreatedBy:  actorID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.runs.Create(ctx, run); err != nil {
			h.Cancel()
			s.logger.Error("failed to persist run", zap.String("run_id", h.ID), zap.Error(err))
			continue
		}
		go s.track(h, dataset)
		resp.Runs = append(resp.Runs, runResponse(run))
	}

	go func() {
		summary := <-summaryCh
		s.logger.Info("optimization batch finished",
			zap.String("semester_id", req.SemesterID),
			zap.String("summary", summary.Message))
	}()

	if len(resp.Runs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "no runs could be started")
	}
	return resp, nil
}

// track mirrors a handle's lifecycle into storage: RUNNING on the first
// event, the terminal snapshot when the stream closes.
func (s *OptimizerService) track(h *runner.Handle, dataset *domain.Dataset) {
	events, unsubscribe := h.Subscribe(0)
	defer unsubscribe()

	marked := false
	for range events {
		if !marked {
			if err := s.runs.MarkRunning(context.Background(), h.ID, h.StartedAt()); err != nil {
				s.logger.Warn("failed to mark run running", zap.String("run_id", h.ID), zap.Error(err))
			}
			marked = true
		}
	}

	state := h.State()
	finish := repository.FinishRunParams{
		Status:        models.RunStatus(state),
		DroppedEvents: h.DroppedEvents(),
		FinishedAt:    h.FinishedAt(),
	}
	result, runErr := h.Result()
	switch {
	case state == runner.StateFailed:
		msg := "run failed"
		if runErr != nil {
			msg = runErr.Error()
		}
		finish.ErrorMessage = &msg
	case result != nil:
		metrics, stored := runResultModels(dataset, result)
		finish.Metrics = metrics
		finish.Result = stored
		finish.Incomplete = result.Incomplete
	}

	if err := s.runs.Finish(context.Background(), h.ID, finish); err != nil {
		s.logger.Error("failed to persist run result", zap.String("run_id", h.ID), zap.Error(err))
		return
	}
	if s.optimizer != nil {
		s.optimizer.RecordRunFinished(h.Algorithm, string(state), h.DroppedEvents())
	}
	s.logger.Info("run finished",
		zap.String("run_id", h.ID),
		zap.String("algorithm", h.Algorithm),
		zap.String("status", string(state)))
}

// GetRun returns a run's current state, preferring live handle data over
// the stored row for non-terminal runs.
func (s *OptimizerService) GetRun(ctx context.Context, runID string) (*dto.RunResponse, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get run")
	}
	if !run.Status.Terminal() {
		if h, ok := s.runner.Get(runID); ok {
			run.Status = models.RunStatus(h.State())
		}
	}
	resp := runResponse(run)
	return &resp, nil
}

// ListRuns returns stored runs matching the query.
func (s *OptimizerService) ListRuns(ctx context.Context, query dto.RunListQuery) ([]dto.RunResponse, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run query")
	}
	filter := models.RunFilter{
		SemesterID: query.SemesterID,
		Algorithm:  query.Algorithm,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if query.Status != "" {
		status := models.RunStatus(query.Status)
		filter.Status = &status
	}
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list runs")
	}

	out := make([]dto.RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, runResponse(&runs[i]))
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	return out, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// StreamProgress subscribes to a run's ordered event stream. Terminal runs
// without a live handle get a synthesized terminal event so late consumers
// always observe closure.
func (s *OptimizerService) StreamProgress(ctx context.Context, runID string) (<-chan runner.Event, func(), error) {
	if h, ok := s.runner.Get(runID); ok {
		events, unsubscribe := h.Subscribe(s.runner.EventBuffer())
		return events, unsubscribe, nil
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get run")
	}
	if !run.Status.Terminal() {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "run is not active in this process")
	}

	finishedAt := time.Now().UTC()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}
	ch := make(chan runner.Event, 1)
	ch <- runner.Event{
		RunID:    run.ID,
		Sequence: 1,
		ProgressEvent: strategy.ProgressEvent{
			Timestamp: finishedAt,
			Algorithm: run.Algorithm,
			Stage:     string(run.Status),
			Level:     strategy.LevelTerminal,
			Message:   "run already terminal",
		},
	}
	close(ch)
	return ch, func() {}, nil
}

// CancelRun requests cooperative cancellation of a live run.
func (s *OptimizerService) CancelRun(ctx context.Context, runID string) error {
	if h, ok := s.runner.Get(runID); ok {
		h.Cancel()
		return nil
	}
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get run")
	}
	if run.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrConflict, "run already terminal")
	}
	return appErrors.Clone(appErrors.ErrNotFound, "run is not active in this process")
}

// GetResult returns a terminal run's best candidate. Non-terminal runs
// yield ErrRunNotReady; failed runs yield ErrRunFailed.
func (s *OptimizerService) GetResult(ctx context.Context, runID string) (*dto.RunResultResponse, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get run")
	}
	if !run.Status.Terminal() {
		return nil, appErrors.ErrRunNotReady
	}
	if run.Status == models.RunStatusFailed {
		msg := appErrors.ErrRunFailed.Message
		if run.ErrorMessage != nil {
			msg = *run.ErrorMessage
		}
		return nil, appErrors.Clone(appErrors.ErrRunFailed, msg)
	}
	if run.Result == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run has no stored result")
	}

	resp := &dto.RunResultResponse{
		RunID:       run.ID,
		Algorithm:   run.Algorithm,
		Status:      run.Status,
		Incomplete:  run.Incomplete,
		Assignments: run.Result.Assignments,
		Unassigned:  run.Result.Unassigned,
	}
	if run.Metrics != nil {
		resp.Metrics = *run.Metrics
	}
	return resp, nil
}

func toStrategyParams(p dto.OptimizationParams) strategy.Params {
	return strategy.Params{
		Seed:           p.Seed,
		WallClock:      time.Duration(p.WallClockSeconds) * time.Second,
		PopulationSize: p.PopulationSize,
		Generations:    p.Generations,
		CrossoverRate:  p.CrossoverRate,
		MutationRate:   p.MutationRate,
		Crossover:      p.Crossover,
		MaxIterations:  p.MaxIterations,
		RepairMode:     p.RepairMode,
		Episodes:       p.Episodes,
		Epsilon:        p.Epsilon,
		Alpha:          p.Alpha,
		Gamma:          p.Gamma,
		Policy:         p.Policy,
	}
}

func runResponse(run *models.OptimizationRun) dto.RunResponse {
	return dto.RunResponse{
		ID:            run.ID,
		SemesterID:    run.SemesterID,
		Algorithm:     run.Algorithm,
		Status:        run.Status,
		Incomplete:    run.Incomplete,
		DroppedEvents: run.DroppedEvents,
		Metrics:       run.Metrics,
		Error:         run.ErrorMessage,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}

// runResultModels converts a strategy result into its storage form,
// resolving subjects and durations from the dataset.
func runResultModels(d *domain.Dataset, res *strategy.Result) (*models.RunMetrics, *models.RunResult) {
	metrics := &models.RunMetrics{
		HardViolations:        res.Evaluation.HardViolations(),
		RoomConflicts:         res.Evaluation.RoomConflicts,
		TeacherConflicts:      res.Evaluation.TeacherConflicts,
		StudentConflicts:      res.Evaluation.StudentConflicts,
		CapacityViolations:    res.Evaluation.CapacityViolations,
		DistributionConflicts: res.Evaluation.DistributionConflicts,
		Unassigned:            res.Evaluation.Unassigned,
		SoftScore:             res.Evaluation.SoftScore,
		Iterations:            res.Iterations,
	}

	stored := &models.RunResult{
		Assignments: make([]models.RunAssignment, 0, res.Schedule.Len()),
		Unassigned:  res.Schedule.UnassignedIDs(d),
	}
	for _, id := range res.Schedule.AssignedIDs() {
		placement, _ := res.Schedule.Placement(id)
		activity, _ := d.Activity(id)
		stored.Assignments = append(stored.Assignments, models.RunAssignment{
			ActivityID:  id,
			Subject:     activity.Subject,
			Day:         placement.Day,
			StartPeriod: placement.StartPeriod,
			Duration:    activity.Duration,
			SpaceID:     placement.SpaceID,
		})
	}
	return metrics, stored
}
