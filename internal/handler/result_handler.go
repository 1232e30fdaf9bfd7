package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

type resultService interface {
	Sheet(ctx context.Context, courseID, assessment string) (*models.ResultSheet, error)
	Save(ctx context.Context, courseID, assessment string, req models.SaveResultsRequest) (*models.ResultSheet, error)
	StudentResults(ctx context.Context, studentID string) ([]models.StudentResult, error)
}

// ResultHandler serves assessment marks.
type ResultHandler struct {
	service resultService
}

// NewResultHandler constructs the handler.
func NewResultHandler(svc resultService) *ResultHandler {
	return &ResultHandler{service: svc}
}

// Sheet godoc
// @Summary Marks of one assessment
// @Tags Results
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Param assessment path string true "Assessment key"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/results/{assessment} [get]
func (h *ResultHandler) Sheet(c *gin.Context) {
	sheet, err := h.service.Sheet(c.Request.Context(), c.Param("id"), c.Param("assessment"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sheet)
}

// Save godoc
// @Summary Replace marks of one assessment
// @Tags Results
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param assessment path string true "Assessment key"
// @Param payload body models.SaveResultsRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/results/{assessment} [put]
func (h *ResultHandler) Save(c *gin.Context) {
	var req models.SaveResultsRequest
	if !bindJSON(c, &req, "invalid results payload") {
		return
	}
	sheet, err := h.service.Save(c.Request.Context(), c.Param("id"), c.Param("assessment"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sheet)
}

// Student godoc
// @Summary Transcript of a student
// @Tags Results
// @Security BearerAuth
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/results [get]
func (h *ResultHandler) Student(c *gin.Context) {
	results, err := h.service.StudentResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, results)
}
