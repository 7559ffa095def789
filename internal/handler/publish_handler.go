package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/response"
)

type publishService interface {
	Publish(ctx context.Context, req dto.PublishRequest, actorID string) (*dto.PublishResponse, error)
	GetPublished(ctx context.Context, semesterID string) (*dto.PublishedScheduleResponse, error)
	ExportCSV(ctx context.Context, semesterID string) ([]byte, string, error)
}

// PublishHandler exposes timetable publication endpoints.
type PublishHandler struct {
	publisher publishService
}

// NewPublishHandler constructs handler.
func NewPublishHandler(publisher publishService) *PublishHandler {
	return &PublishHandler{publisher: publisher}
}

// Publish godoc
// @Summary Publish the selected run's timetable
// @Tags Publish
// @Produce json
// @Param semester path string true "Semester ID"
// @Success 201 {object} response.Envelope
// @Router /optimizer/semesters/{semester}/publish [post]
func (h *PublishHandler) Publish(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req := dto.PublishRequest{SemesterID: c.Param("semester")}
	resp, err := h.publisher.Publish(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// GetPublished godoc
// @Summary Current published timetable for a semester
// @Tags Publish
// @Produce json
// @Param semester path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /optimizer/semesters/{semester}/published [get]
func (h *PublishHandler) GetPublished(c *gin.Context) {
	published, err := h.publisher.GetPublished(c.Request.Context(), c.Param("semester"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, published, nil)
}

// ExportCSV godoc
// @Summary Download the published timetable as CSV
// @Tags Publish
// @Produce text/csv
// @Param semester path string true "Semester ID"
// @Success 200 {string} string "csv"
// @Router /optimizer/semesters/{semester}/published/export.csv [get]
func (h *PublishHandler) ExportCSV(c *gin.Context) {
	data, filename, err := h.publisher.ExportCSV(c.Request.Context(), c.Param("semester"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}
