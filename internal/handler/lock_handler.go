package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edumatrix-api/internal/models"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/response"
)

// OpsTokenHeader carries the operator override token for force-release.
const OpsTokenHeader = "X-Ops-Token"

type lockService interface {
	Get(ctx context.Context, role models.UserRole) (*models.ActiveLock, error)
	Transfer(ctx context.Context, role models.UserRole, actor string, targetID string) (*models.ActiveLock, error)
	Revoke(ctx context.Context, role models.UserRole, actor string) error
	ForceRelease(ctx context.Context, role models.UserRole, token, reason string) (*models.ActiveLock, error)
}

// LockHandler exposes the single-active-account portal locks.
type LockHandler struct {
	service lockService
}

// NewLockHandler constructs the handler.
func NewLockHandler(svc lockService) *LockHandler {
	return &LockHandler{service: svc}
}

// roleFor resolves :role and checks the caller may act on it. Admins may
// read any lock but only change their own portal's.
func (h *LockHandler) roleFor(c *gin.Context, write bool) (models.UserRole, *models.JWTClaims, bool) {
	claims, ok := requireClaims(c)
	if !ok {
		return "", nil, false
	}
	role, valid := parseRole(c.Param("role"))
	if !valid || !models.LockableRole(role) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "role must be admin or teacher"))
		return "", nil, false
	}
	if claims.Role != role && (write || claims.Role != models.RoleAdmin) {
		response.Error(c, appErrors.ErrForbidden)
		return "", nil, false
	}
	return role, claims, true
}

// Get godoc
// @Summary Current holder of a portal
// @Tags Locks
// @Security BearerAuth
// @Produce json
// @Param role path string true "admin or teacher"
// @Success 200 {object} response.Envelope
// @Router /locks/{role} [get]
func (h *LockHandler) Get(c *gin.Context) {
	role, _, ok := h.roleFor(c, false)
	if !ok {
		return
	}
	lock, err := h.service.Get(c.Request.Context(), role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"role": role, "lock": lock})
}

// Transfer godoc
// @Summary Hand the portal to another account
// @Tags Locks
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param role path string true "admin or teacher"
// @Param payload body models.TransferLockRequest true "Target account"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /locks/{role}/transfer [post]
func (h *LockHandler) Transfer(c *gin.Context) {
	role, claims, ok := h.roleFor(c, true)
	if !ok {
		return
	}
	var req models.TransferLockRequest
	if !bindJSON(c, &req, "invalid transfer payload") {
		return
	}
	lock, err := h.service.Transfer(c.Request.Context(), role, claims.Username, req.TargetUserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, lock)
}

// Revoke godoc
// @Summary Release the portal held by the caller
// @Tags Locks
// @Security BearerAuth
// @Param role path string true "admin or teacher"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /locks/{role}/revoke [post]
func (h *LockHandler) Revoke(c *gin.Context) {
	role, claims, ok := h.roleFor(c, true)
	if !ok {
		return
	}
	if err := h.service.Revoke(c.Request.Context(), role, claims.Username); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ForceRelease godoc
// @Summary Operator override that clears a portal lock
// @Tags Locks
// @Accept json
// @Produce json
// @Param role path string true "admin or teacher"
// @Param X-Ops-Token header string true "Operator token"
// @Param payload body models.ForceReleaseRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /locks/{role}/force-release [post]
func (h *LockHandler) ForceRelease(c *gin.Context) {
	role, valid := parseRole(c.Param("role"))
	if !valid || !models.LockableRole(role) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "role must be admin or teacher"))
		return
	}
	var req models.ForceReleaseRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid force-release payload") {
		return
	}
	previous, err := h.service.ForceRelease(c.Request.Context(), role, c.GetHeader(OpsTokenHeader), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"role": role, "released": previous})
}
