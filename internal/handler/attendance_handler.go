package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

type attendanceService interface {
	Day(ctx context.Context, courseID, date string) (*models.AttendanceDay, error)
	Save(ctx context.Context, courseID, date string, req models.SaveAttendanceRequest) (*models.AttendanceDay, error)
	StudentSummary(ctx context.Context, studentID string) ([]models.AttendanceSummary, error)
}

// AttendanceHandler serves the daily attendance sheet of a course.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Day godoc
// @Summary Attendance sheet for one day
// @Description Rows cover the current roster. Date defaults to today.
// @Tags Attendance
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/attendance [get]
func (h *AttendanceHandler) Day(c *gin.Context) {
	day, err := h.service.Day(c.Request.Context(), c.Param("id"), strings.TrimSpace(c.Query("date")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, day)
}

// Save godoc
// @Summary Replace attendance for one day
// @Tags Attendance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param date query string false "YYYY-MM-DD"
// @Param payload body models.SaveAttendanceRequest true "Attendance marks"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/attendance [put]
func (h *AttendanceHandler) Save(c *gin.Context) {
	var req models.SaveAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	day, err := h.service.Save(c.Request.Context(), c.Param("id"), strings.TrimSpace(c.Query("date")), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, day)
}

// Student godoc
// @Summary Attendance summary of a student
// @Tags Attendance
// @Security BearerAuth
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) Student(c *gin.Context) {
	summary, err := h.service.StudentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}
