package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Brownie44l1/marketguard/internal/api/dto"
	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ==============================================
// SERVICE INTERFACE (for testing)
// ==============================================

type VerificationService interface {
	CreateRequest(ctx context.Context, actor models.Actor, t models.VerificationType, target string) (*models.VerificationRequest, error)
	Verify(ctx context.Context, actor models.Actor, requestID int64, code string) (*models.VerificationRequest, error)
	Resend(ctx context.Context, actor models.Actor, requestID int64) (*models.VerificationRequest, error)
	Cancel(ctx context.Context, actor models.Actor, requestID int64) (*models.VerificationRequest, error)
}

// ==============================================
// HANDLER (HTTP Layer ONLY)
// ==============================================

type VerificationHandler struct {
	service VerificationService
	logger  *zap.Logger
}

func NewVerificationHandler(service VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{service: service, logger: logger}
}

// ==============================================
// ENDPOINTS
// ==============================================

// Create handles POST /api/v1/verifications
func (h *VerificationHandler) Create(c *gin.Context) {
	var req dto.CreateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeValidationFailed, "Invalid request")
		return
	}

	result, err := h.service.CreateRequest(c.Request.Context(), mustActor(c), models.VerificationType(req.Type), req.Value)
	h.respondIssued(c, http.StatusCreated, result, err)
}

// Verify handles POST /api/v1/verifications/:id/verify
func (h *VerificationHandler) Verify(c *gin.Context) {
	id, ok := parseRequestID(c)
	if !ok {
		// Same body as any other failed verification.
		respondServiceError(c, h.logger, models.ErrInvalidOrExpired)
		return
	}

	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondServiceError(c, h.logger, models.ErrInvalidOrExpired)
		return
	}

	result, err := h.service.Verify(c.Request.Context(), mustActor(c), id, req.Code)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, dto.NewVerificationResponse(result))
}

// Resend handles POST /api/v1/verifications/:id/resend
func (h *VerificationHandler) Resend(c *gin.Context) {
	id, ok := parseRequestID(c)
	if !ok {
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Not found")
		return
	}

	result, err := h.service.Resend(c.Request.Context(), mustActor(c), id)
	h.respondIssued(c, http.StatusOK, result, err)
}

// Cancel handles POST /api/v1/verifications/:id/cancel
func (h *VerificationHandler) Cancel(c *gin.Context) {
	id, ok := parseRequestID(c)
	if !ok {
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Not found")
		return
	}

	result, err := h.service.Cancel(c.Request.Context(), mustActor(c), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, dto.NewVerificationResponse(result))
}

// ==============================================
// ROUTE REGISTRATION
// ==============================================

func (h *VerificationHandler) RegisterRoutes(router *gin.Engine, authn *Authenticator) {
	v1 := router.Group("/api/v1/verifications", authn.Token(), authn.Session())
	{
		v1.POST("", h.Create)
		v1.POST("/:id/verify", h.Verify)
		v1.POST("/:id/resend", h.Resend)
		v1.POST("/:id/cancel", h.Cancel)
	}
}

// ==============================================
// HELPER FUNCTIONS
// ==============================================

// respondIssued handles create and resend, which can succeed at persisting a
// code yet fail to deliver it.
func (h *VerificationHandler) respondIssued(c *gin.Context, status int, result *models.VerificationRequest, err error) {
	if err != nil && !(models.IsDispatchFailure(err) && result != nil) {
		respondServiceError(c, h.logger, err)
		return
	}

	resp := dto.NewVerificationResponse(result)
	if err != nil {
		h.logger.Warn("verification code not delivered",
			zap.Int64("request_id", result.ID),
			zap.Error(err),
		)
		resp.DeliveryFailed = true
		status = http.StatusAccepted
	}
	respondSuccess(c, status, resp)
}

// parseRequestID extracts and validates :id from the URL
func parseRequestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
