package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/dto"
	"github.com/noah-isme/edumatrix-api/internal/middleware"
	"github.com/noah-isme/edumatrix-api/internal/models"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
	Teacher(ctx context.Context, username string) (*dto.TeacherDashboardResponse, bool, error)
	Student(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Admin godoc
// @Summary Admin dashboard summary
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, summary, cacheHit, start)
}

// Teacher godoc
// @Summary Teacher dashboard
// @Description Teachers see their own courses. Admins may pass a teacher username.
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param teacher query string false "Teacher username (admin only)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/teacher [get]
func (h *DashboardHandler) Teacher(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	username := claims.Username
	if claims.Role == models.RoleAdmin {
		username = strings.TrimSpace(c.Query("teacher"))
		if username == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher is required"))
			return
		}
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Teacher(c.Request.Context(), username)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, summary, cacheHit, start)
}

// Student godoc
// @Summary Student dashboard
// @Description Students see their own record. Staff may pass a student id.
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param studentId query string false "Student ID (staff only)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/student [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	studentID := claims.UserID
	if claims.Role != models.RoleStudent {
		studentID = strings.TrimSpace(c.Query("studentId"))
		if studentID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
			return
		}
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Student(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, summary, cacheHit, start)
}

func respond(c *gin.Context, data interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}
