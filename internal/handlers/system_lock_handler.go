package handlers

import (
	"context"
	"net/http"

	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SystemLockService interface {
	GetStatus(ctx context.Context) (*models.LockStatusView, error)
	ScheduleLock(ctx context.Context, actor models.Actor) (*models.LockStatusView, error)
	Unlock(ctx context.Context, actor models.Actor) (*models.LockStatusView, error)
}

type SystemLockHandler struct {
	service SystemLockService
	logger  *zap.Logger
}

func NewSystemLockHandler(service SystemLockService, logger *zap.Logger) *SystemLockHandler {
	return &SystemLockHandler{service: service, logger: logger}
}

// Status handles GET /api/v1/admin/system-lock and /api/v1/storefront/status
func (h *SystemLockHandler) Status(c *gin.Context) {
	view, err := h.service.GetStatus(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// Schedule handles POST /api/v1/admin/system-lock/schedule
func (h *SystemLockHandler) Schedule(c *gin.Context) {
	view, err := h.service.ScheduleLock(c.Request.Context(), mustActor(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// Unlock handles POST /api/v1/admin/system-lock/unlock
func (h *SystemLockHandler) Unlock(c *gin.Context) {
	view, err := h.service.Unlock(c.Request.Context(), mustActor(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

func (h *SystemLockHandler) RegisterRoutes(router *gin.Engine, authn *Authenticator) {
	admin := router.Group("/api/v1/admin/system-lock", authn.Token(), authn.Session(), RequireAdmin())
	{
		admin.GET("", h.Status)
		admin.POST("/schedule", h.Schedule)
		admin.POST("/unlock", h.Unlock)
	}

	// Storefront routes sit behind the gate; the status endpoint is the only
	// one this service owns.
	storefront := router.Group("/api/v1/storefront", StorefrontGate(h.service, h.logger))
	{
		storefront.GET("/status", h.Status)
	}
}
