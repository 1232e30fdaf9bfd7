package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrolledStudent, error)
	Enroll(ctx context.Context, actor string, req models.EnrollRequest) (*models.EnrolledStudent, error)
	Unenroll(ctx context.Context, actor, studentID, courseID string) (bool, error)
}

// EnrollmentHandler manages enrollment endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Security BearerAuth
// @Produce json
// @Param studentId query string false "Student ID"
// @Param courseId query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		StudentID: strings.TrimSpace(c.Query("studentId")),
		CourseID:  strings.TrimSpace(c.Query("courseId")),
	}
	rows, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Enroll godoc
// @Summary Enroll student into course
// @Tags Enrollments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	row, err := h.service.Enroll(c.Request.Context(), claims.Username, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// Unenroll godoc
// @Summary Remove a student from a course
// @Description Removing a pair that is not enrolled succeeds with removed=false.
// @Tags Enrollments
// @Security BearerAuth
// @Produce json
// @Param studentId query string true "Student ID"
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	removed, err := h.service.Unenroll(c.Request.Context(), claims.Username, strings.TrimSpace(c.Query("studentId")), strings.TrimSpace(c.Query("courseId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}
