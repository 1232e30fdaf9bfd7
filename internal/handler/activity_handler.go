package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

const defaultActivityLimit = 50

type activityLister interface {
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
}

// ActivityHandler lists the activity log.
type ActivityHandler struct {
	service activityLister
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(svc activityLister) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// List godoc
// @Summary Recent activity, newest first
// @Tags Activities
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Maximum entries (default 50)"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit")
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	entries, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}
