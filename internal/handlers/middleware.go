package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Brownie44l1/marketguard/internal/auth"
	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorKey = "actor"

// SessionValidator is the part of the session guard every authenticated
// request goes through.
type SessionValidator interface {
	Validate(ctx context.Context, actor models.Actor) error
}

type LockStatusReader interface {
	GetStatus(ctx context.Context) (*models.LockStatusView, error)
}

// ==============================================
// AUTHENTICATION
// ==============================================

type Authenticator struct {
	secret   string
	sessions SessionValidator
	logger   *zap.Logger
}

func NewAuthenticator(secret string, sessions SessionValidator, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: secret, sessions: sessions, logger: logger}
}

// Token resolves the actor from the bearer token alone. Used by the login
// conflict routes, where the new session is not current yet.
func (a *Authenticator) Token() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Missing bearer token")
			return
		}

		claims, err := auth.ValidateJWT(token, a.secret)
		if err != nil {
			respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid token")
			return
		}

		c.Set(actorKey, models.Actor{
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			IsAdmin:   claims.IsAdmin,
		})
		c.Next()
	}
}

// Session additionally requires the token's session to be the user's live
// current session.
func (a *Authenticator) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Not authenticated")
			return
		}

		if err := a.sessions.Validate(c.Request.Context(), actor); err != nil {
			respondServiceError(c, a.logger, err)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects non-admin actors.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok || !actor.IsAdmin {
			respondError(c, http.StatusForbidden, models.ErrCodeForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// ==============================================
// STOREFRONT GATE
// ==============================================

// StorefrontGate answers 503 while the storefront lock reads as locked.
// Reading the status is what activates a due lock.
func StorefrontGate(lock LockStatusReader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := lock.GetStatus(c.Request.Context())
		if err != nil {
			respondServiceError(c, logger, err)
			return
		}

		if view.Status == models.LockLocked {
			respondError(c, http.StatusServiceUnavailable, models.ErrCodeStorefrontLocked, "The store is temporarily closed")
			return
		}

		if view.RemainingSeconds != nil {
			c.Header("X-Storefront-Locks-In", strconv.FormatInt(*view.RemainingSeconds, 10))
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

func mustActor(c *gin.Context) models.Actor {
	actor, _ := actorFrom(c)
	return actor
}
