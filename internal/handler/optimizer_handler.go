package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	"github.com/noah-isme/uni-timetable-api/internal/runner"
	"github.com/noah-isme/uni-timetable-api/internal/strategy"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/response"
)

type optimizerService interface {
	StartRun(ctx context.Context, req dto.StartRunRequest, actorID string) (*dto.StartRunResponse, error)
	GetRun(ctx context.Context, runID string) (*dto.RunResponse, error)
	ListRuns(ctx context.Context, query dto.RunListQuery) ([]dto.RunResponse, *models.Pagination, error)
	StreamProgress(ctx context.Context, runID string) (<-chan runner.Event, func(), error)
	CancelRun(ctx context.Context, runID string) error
	GetResult(ctx context.Context, runID string) (*dto.RunResultResponse, error)
}

// OptimizerHandler exposes optimization run endpoints.
type OptimizerHandler struct {
	optimizer optimizerService
}

// NewOptimizerHandler constructs handler.
func NewOptimizerHandler(optimizer optimizerService) *OptimizerHandler {
	return &OptimizerHandler{optimizer: optimizer}
}

// StartRun godoc
// @Summary Launch optimization runs for a semester
// @Tags Optimizer
// @Accept json
// @Produce json
// @Param request body dto.StartRunRequest true "Run request"
// @Success 202 {object} response.Envelope
// @Router /optimizer/runs [post]
func (h *OptimizerHandler) StartRun(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	resp, err := h.optimizer.StartRun(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, resp, nil)
}

// ListRuns godoc
// @Summary List optimization runs
// @Tags Optimizer
// @Produce json
// @Param semesterId query string false "Semester ID"
// @Param algorithm query string false "Algorithm"
// @Param status query string false "Run status"
// @Success 200 {object} response.Envelope
// @Router /optimizer/runs [get]
func (h *OptimizerHandler) ListRuns(c *gin.Context) {
	var query dto.RunListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	runs, pagination, err := h.optimizer.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// GetRun godoc
// @Summary Get one optimization run
// @Tags Optimizer
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /optimizer/runs/{id} [get]
func (h *OptimizerHandler) GetRun(c *gin.Context) {
	run, err := h.optimizer.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// StreamEvents godoc
// @Summary Stream run progress as server-sent events
// @Tags Optimizer
// @Produce text/event-stream
// @Param id path string true "Run ID"
// @Success 200 {string} string "event stream"
// @Router /optimizer/runs/{id}/events [get]
func (h *OptimizerHandler) StreamEvents(c *gin.Context) {
	events, unsubscribe, err := h.optimizer.StreamProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", progressEventResponse(ev))
			return ev.Level != strategy.LevelTerminal
		case <-ctx.Done():
			return false
		}
	})
}

// CancelRun godoc
// @Summary Request cancellation of a run
// @Tags Optimizer
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Router /optimizer/runs/{id}/cancel [post]
func (h *OptimizerHandler) CancelRun(c *gin.Context) {
	if err := h.optimizer.CancelRun(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "cancelling"}, nil)
}

// GetResult godoc
// @Summary Get a terminal run's best timetable
// @Tags Optimizer
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /optimizer/runs/{id}/result [get]
func (h *OptimizerHandler) GetResult(c *gin.Context) {
	result, err := h.optimizer.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func progressEventResponse(ev runner.Event) dto.ProgressEventResponse {
	return dto.ProgressEventResponse{
		RunID:     ev.RunID,
		Sequence:  ev.Sequence,
		Timestamp: ev.Timestamp,
		Algorithm: ev.Algorithm,
		Stage:     ev.Stage,
		Level:     ev.Level,
		Message:   ev.Message,
		Metrics:   ev.Metrics,
	}
}
