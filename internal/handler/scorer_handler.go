package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/response"
)

type scorerService interface {
	Leaderboard(ctx context.Context, semesterID string) (*dto.LeaderboardResponse, error)
	SelectAlgorithm(ctx context.Context, req dto.SelectAlgorithmRequest, actorID string) (*dto.SelectionResponse, error)
	GetSelection(ctx context.Context, semesterID string) (*dto.SelectionResponse, error)
}

// ScorerHandler exposes the run leaderboard and algorithm selection.
type ScorerHandler struct {
	scorer scorerService
}

// NewScorerHandler constructs handler.
func NewScorerHandler(scorer scorerService) *ScorerHandler {
	return &ScorerHandler{scorer: scorer}
}

// Leaderboard godoc
// @Summary Ranked comparison of a semester's terminal runs
// @Tags Scorer
// @Produce json
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /optimizer/leaderboard [get]
func (h *ScorerHandler) Leaderboard(c *gin.Context) {
	semesterID := c.Query("semesterId")
	if semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "semesterId required"))
		return
	}
	board, err := h.scorer.Leaderboard(c.Request.Context(), semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// SelectAlgorithm godoc
// @Summary Select a run's algorithm for a semester
// @Tags Scorer
// @Accept json
// @Produce json
// @Param semester path string true "Semester ID"
// @Param request body dto.SelectAlgorithmRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Router /optimizer/semesters/{semester}/selection [post]
func (h *ScorerHandler) SelectAlgorithm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SelectAlgorithmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	req.SemesterID = c.Param("semester")
	sel, err := h.scorer.SelectAlgorithm(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sel, nil)
}

// GetSelection godoc
// @Summary Current algorithm selection for a semester
// @Tags Scorer
// @Produce json
// @Param semester path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /optimizer/semesters/{semester}/selection [get]
func (h *ScorerHandler) GetSelection(c *gin.Context) {
	sel, err := h.scorer.GetSelection(c.Request.Context(), c.Param("semester"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sel, nil)
}
