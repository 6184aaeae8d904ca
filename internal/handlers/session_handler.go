package handlers

import (
	"context"
	"net/http"

	"github.com/Brownie44l1/marketguard/internal/api/dto"
	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionService interface {
	Establish(ctx context.Context, userID int64, sessionID string) error
	DetectConflict(ctx context.Context, userID int64, newSessionID string) (bool, error)
	ForceLogoutAndAdopt(ctx context.Context, userID int64, newSessionID string) error
	CancelAndDiscard(ctx context.Context, userID int64, newSessionID string) error
	Logout(ctx context.Context, actor models.Actor) error
}

type AccountReader interface {
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
}

type SessionHandler struct {
	service  SessionService
	accounts AccountReader
	logger   *zap.Logger
}

func NewSessionHandler(service SessionService, accounts AccountReader, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{service: service, accounts: accounts, logger: logger}
}

// ==============================================
// LOGIN CONFLICT (token's session need not be current)
// ==============================================

// Establish handles POST /api/v1/sessions/establish
func (h *SessionHandler) Establish(c *gin.Context) {
	actor := mustActor(c)
	if err := h.service.Establish(c.Request.Context(), actor.UserID, actor.SessionID); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, dto.SessionResponse{SessionID: actor.SessionID, Status: "active"})
}

// Conflict handles POST /api/v1/sessions/conflict
func (h *SessionHandler) Conflict(c *gin.Context) {
	actor := mustActor(c)
	conflict, err := h.service.DetectConflict(c.Request.Context(), actor.UserID, actor.SessionID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, dto.ConflictResponse{Conflict: conflict})
}

// Adopt handles POST /api/v1/sessions/adopt
func (h *SessionHandler) Adopt(c *gin.Context) {
	actor := mustActor(c)
	if err := h.service.ForceLogoutAndAdopt(c.Request.Context(), actor.UserID, actor.SessionID); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, dto.SessionResponse{SessionID: actor.SessionID, Status: "active"})
}

// Discard handles POST /api/v1/sessions/discard
func (h *SessionHandler) Discard(c *gin.Context) {
	actor := mustActor(c)
	if err := h.service.CancelAndDiscard(c.Request.Context(), actor.UserID, actor.SessionID); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, dto.SessionResponse{SessionID: actor.SessionID, Status: "discarded"})
}

// ==============================================
// AUTHENTICATED
// ==============================================

// Logout handles POST /api/v1/sessions/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	actor := mustActor(c)
	if err := h.service.Logout(c.Request.Context(), actor); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, dto.SessionResponse{SessionID: actor.SessionID, Status: "logged_out"})
}

// Me handles GET /api/v1/me
func (h *SessionHandler) Me(c *gin.Context) {
	user, err := h.accounts.GetUserByID(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondSuccess(c, http.StatusOK, dto.NewAccountResponse(user))
}

func (h *SessionHandler) RegisterRoutes(router *gin.Engine, authn *Authenticator) {
	pending := router.Group("/api/v1/sessions", authn.Token())
	{
		pending.POST("/establish", h.Establish)
		pending.POST("/conflict", h.Conflict)
		pending.POST("/adopt", h.Adopt)
		pending.POST("/discard", h.Discard)
	}

	live := router.Group("/api/v1", authn.Token(), authn.Session())
	{
		live.POST("/sessions/logout", h.Logout)
		live.GET("/me", h.Me)
	}
}
