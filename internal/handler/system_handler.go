package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/dto"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

type systemService interface {
	Snapshot(ctx context.Context, actor string) (*dto.SystemSnapshot, error)
	Reset(ctx context.Context, actor string) error
	Seed(ctx context.Context) (bool, error)
	Ready(ctx context.Context) error
}

type metricsSnapshotter interface {
	Snapshot() dto.SystemMetrics
}

// SystemHandler exposes data export, reset and seeding for admins along
// with the public health probes.
type SystemHandler struct {
	service systemService
	metrics metricsSnapshotter
}

// NewSystemHandler constructs the handler.
func NewSystemHandler(svc systemService, metrics metricsSnapshotter) *SystemHandler {
	return &SystemHandler{service: svc, metrics: metrics}
}

// Snapshot godoc
// @Summary Export every stored document
// @Tags System
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/snapshot [get]
func (h *SystemHandler) Snapshot(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(c.Request.Context(), claims.Username)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"edumatrix-snapshot.json\"")
	response.OK(c, snap)
}

// Reset godoc
// @Summary Delete all school data and portal locks
// @Tags System
// @Security BearerAuth
// @Success 204
// @Router /system/reset [post]
func (h *SystemHandler) Reset(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.service.Reset(c.Request.Context(), claims.Username); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Seed godoc
// @Summary Load demo data into an empty store
// @Tags System
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/seed [post]
func (h *SystemHandler) Seed(c *gin.Context) {
	seeded, err := h.service.Seed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"seeded": seeded})
}

// Metrics godoc
// @Summary Counter summary for the settings page
// @Tags System
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/metrics [get]
func (h *SystemHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		response.OK(c, dto.SystemMetrics{})
		return
	}
	response.OK(c, h.metrics.Snapshot())
}

// Health reports liveness.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the document store answers.
func (h *SystemHandler) Ready(c *gin.Context) {
	if err := h.service.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
