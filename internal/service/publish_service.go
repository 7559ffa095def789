package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/domain"
	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/export"
)

type publicationStore interface {
	GetSelection(ctx context.Context, semesterID string) (*models.AlgorithmSelection, error)
	Publish(ctx context.Context, schedule *models.PublishedSchedule, assignments []models.PublishedAssignment) error
	GetBySemester(ctx context.Context, semesterID string) (*models.PublishedSchedule, []models.PublishedAssignment, error)
}

type runReader interface {
	GetByID(ctx context.Context, id string) (*models.OptimizationRun, error)
}

type csvRenderer interface {
	Render(rows []export.TimetableRow) ([]byte, error)
}

// PublishService turns a selected run's candidate into the semester's
// authoritative timetable.
type PublishService struct {
	publications publicationStore
	runs         runReader
	datasets     datasetLoader
	exporter     csvRenderer
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPublishService constructs the publish service.
func NewPublishService(publications publicationStore, runs runReader, datasets datasetLoader, exporter csvRenderer, validate *validator.Validate, logger *zap.Logger) *PublishService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = export.NewCSVExporter()
	}
	return &PublishService{
		publications: publications,
		runs:         runs,
		datasets:     datasets,
		exporter:     exporter,
		validator:    validate,
		logger:       logger,
	}
}

// Publish writes the selected run's assignments as the semester's
// timetable, replacing any previous publication. It requires a prior
// selection and a succeeded run with a stored result.
func (s *PublishService) Publish(ctx context.Context, req dto.PublishRequest, actorID string) (*dto.PublishResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish request")
	}

	sel, err := s.publications.GetSelection(ctx, req.SemesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no algorithm selected for semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get selection")
	}

	run, err := s.runs.GetByID(ctx, sel.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "selected run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get run")
	}
	if run.Status != models.RunStatusSucceeded {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("selected run is %s; only succeeded runs can be published", run.Status))
	}
	if run.Result == nil || len(run.Result.Assignments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "selected run has no assignments to publish")
	}

	schedule := &models.PublishedSchedule{
		SemesterID:  req.SemesterID,
		RunID:       run.ID,
		Algorithm:   run.Algorithm,
		Metrics:     run.Metrics,
		PublishedBy: actorID,
	}
	assignments := make([]models.PublishedAssignment, 0, len(run.Result.Assignments))
	for _, a := range run.Result.Assignments {
		assignments = append(assignments, models.PublishedAssignment{
			ActivityID:  a.ActivityID,
			Subject:     a.Subject,
			Day:         a.Day,
			StartPeriod: a.StartPeriod,
			Duration:    a.Duration,
			SpaceID:     a.SpaceID,
		})
	}

	if err := s.publications.Publish(ctx, schedule, assignments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "publish schedule")
	}

	s.logger.Info("timetable published",
		zap.String("semester_id", req.SemesterID),
		zap.String("run_id", run.ID),
		zap.String("algorithm", run.Algorithm),
		zap.Int("assignments", len(assignments)))

	return &dto.PublishResponse{
		ScheduleID:  schedule.ID,
		SemesterID:  schedule.SemesterID,
		RunID:       schedule.RunID,
		Algorithm:   schedule.Algorithm,
		Assignments: len(assignments),
		PublishedAt: schedule.PublishedAt,
	}, nil
}

// GetPublished returns the semester's current publication.
func (s *PublishService) GetPublished(ctx context.Context, semesterID string) (*dto.PublishedScheduleResponse, error) {
	schedule, assignments, err := s.publications.GetBySemester(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no published schedule for semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get published schedule")
	}
	return &dto.PublishedScheduleResponse{Schedule: *schedule, Assignments: assignments}, nil
}

// ExportCSV renders the semester's publication as CSV. Day and period
// labels come from the semester's calendar when available; indexes are
// used as a fallback.
func (s *PublishService) ExportCSV(ctx context.Context, semesterID string) ([]byte, string, error) {
	schedule, assignments, err := s.publications.GetBySemester(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "no published schedule for semester")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get published schedule")
	}

	var cal domain.Calendar
	if dataset, err := s.datasets.Load(ctx, semesterID); err == nil {
		cal = dataset.Calendar
	} else {
		s.logger.Warn("calendar unavailable for export, using indexes", zap.Error(err))
	}

	rows := make([]export.TimetableRow, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, export.TimetableRow{
			ActivityID:  a.ActivityID,
			Subject:     a.Subject,
			Day:         dayLabel(cal, a.Day),
			StartPeriod: periodLabel(cal, a.StartPeriod),
			EndPeriod:   periodLabel(cal, a.StartPeriod+a.Duration-1),
			Space:       a.SpaceID,
		})
	}

	data, err := s.exporter.Render(rows)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv")
	}
	filename := fmt.Sprintf("timetable-%s-%s.csv", semesterID, schedule.Algorithm)
	return data, filename, nil
}

func dayLabel(cal domain.Calendar, day int) string {
	if day >= 0 && day < len(cal.Days) {
		return cal.Days[day].Code
	}
	return fmt.Sprintf("%d", day)
}

func periodLabel(cal domain.Calendar, period int) string {
	if period >= 0 && period < len(cal.Periods) {
		return cal.Periods[period].Code
	}
	return fmt.Sprintf("%d", period)
}
