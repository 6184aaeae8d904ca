package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Brownie44l1/marketguard/internal/clock"
	"github.com/Brownie44l1/marketguard/internal/distlock"
	"github.com/Brownie44l1/marketguard/internal/models"
	"go.uber.org/zap"
)

type SessionRepositoryInterface interface {
	CurrentSessionID(ctx context.Context, userID int64) (string, error)
	Create(ctx context.Context, s *models.Session) (bool, error)
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	InvalidateOthers(ctx context.Context, userID int64, keepID string) (int64, error)
	AdoptExclusive(ctx context.Context, s *models.Session) (int64, error)
	DeleteIfNotCurrent(ctx context.Context, userID int64, sessionID string) (bool, error)
	Delete(ctx context.Context, userID int64, sessionID string, now time.Time) error
	Touch(ctx context.Context, userID int64, sessionID string, now time.Time) (bool, error)
}

// adoptTimeout bounds the second eviction phase, which runs detached from the
// caller's context.
const adoptTimeout = 5 * time.Second

// CriticalSection runs fn exclusively for name across processes.
// *distlock.Locker implements it.
type CriticalSection interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// ==============================================
// SESSION GUARD
// ==============================================

// SessionGuard keeps at most one live session per user.
type SessionGuard struct {
	repo   SessionRepositoryInterface
	locks  CriticalSection
	clock  clock.Clock
	settle time.Duration
	logger *zap.Logger
}

func NewSessionGuard(repo SessionRepositoryInterface, locks CriticalSection, clk clock.Clock, settle time.Duration, logger *zap.Logger) *SessionGuard {
	return &SessionGuard{repo: repo, locks: locks, clock: clk, settle: settle, logger: logger}
}

// DetectConflict reports whether a different session is current for userID.
func (g *SessionGuard) DetectConflict(ctx context.Context, userID int64, newSessionID string) (bool, error) {
	current, err := g.repo.CurrentSessionID(ctx, userID)
	if err != nil {
		return false, err
	}
	return current != "" && current != newSessionID, nil
}

// Establish records a login that has no competitor. It fails with
// models.ErrSessionConflict if another session is current.
func (g *SessionGuard) Establish(ctx context.Context, userID int64, sessionID string) error {
	if sessionID == "" {
		return models.Validationf("session id is required")
	}

	return g.exclusive(ctx, userID, func(ctx context.Context) error {
		if err := g.refuseRevoked(ctx, sessionID); err != nil {
			return err
		}

		created, err := g.repo.Create(ctx, g.newSession(userID, sessionID))
		if err != nil {
			return err
		}
		if !created {
			return models.NewAppError(models.ErrCodeSessionConflict,
				"another session is active for this account", models.ErrSessionConflict)
		}

		g.logger.Info("session established", zap.Int64("user_id", userID), zap.String("session_id", sessionID))
		return nil
	})
}

// ForceLogoutAndAdopt evicts every other session of userID and makes
// newSessionID current. Other sessions are first marked invalid so requests
// in flight on them see the eviction, then removed together with the
// adoption in one transaction.
func (g *SessionGuard) ForceLogoutAndAdopt(ctx context.Context, userID int64, newSessionID string) error {
	if newSessionID == "" {
		return models.Validationf("session id is required")
	}

	return g.exclusive(ctx, userID, func(ctx context.Context) error {
		// An evicted or logged-out session must not take the account back.
		if err := g.refuseRevoked(ctx, newSessionID); err != nil {
			return err
		}

		invalidated, err := g.repo.InvalidateOthers(ctx, userID, newSessionID)
		if err != nil {
			return err
		}

		// Phase one is committed. From here on the adoption has to finish,
		// otherwise current_session_id names a session nobody can use. A
		// cancelled caller only cuts the settle delay short.
		if invalidated > 0 && g.settle > 0 {
			timer := time.NewTimer(g.settle)
			select {
			case <-ctx.Done():
				timer.Stop()
				g.logger.Warn("caller left during session settle, adopting now",
					zap.Int64("user_id", userID),
					zap.String("session_id", newSessionID),
				)
			case <-timer.C:
			}
		}

		adoptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), adoptTimeout)
		defer cancel()

		evicted, err := g.repo.AdoptExclusive(adoptCtx, g.newSession(userID, newSessionID))
		if err != nil {
			return err
		}

		g.logger.Info(models.AuditActionSessionAdopted,
			zap.Int64("user_id", userID),
			zap.String("session_id", newSessionID),
			zap.Int64("evicted", evicted),
		)
		return nil
	})
}

// CancelAndDiscard drops the new login attempt. The current session and
// current_session_id are left alone.
func (g *SessionGuard) CancelAndDiscard(ctx context.Context, userID int64, newSessionID string) error {
	return g.exclusive(ctx, userID, func(ctx context.Context) error {
		discarded, err := g.repo.DeleteIfNotCurrent(ctx, userID, newSessionID)
		if err != nil {
			return err
		}

		g.logger.Info(models.AuditActionSessionDiscarded,
			zap.Int64("user_id", userID),
			zap.String("session_id", newSessionID),
			zap.Bool("row_deleted", discarded),
		)
		return nil
	})
}

// Validate checks that actor's session is still the live current session
// and records activity on it.
func (g *SessionGuard) Validate(ctx context.Context, actor models.Actor) error {
	live, err := g.repo.Touch(ctx, actor.UserID, actor.SessionID, g.clock.Now())
	if err != nil {
		return err
	}
	if !live {
		return models.ErrSessionTerminated
	}
	return nil
}

// Logout ends actor's session.
func (g *SessionGuard) Logout(ctx context.Context, actor models.Actor) error {
	return g.exclusive(ctx, actor.UserID, func(ctx context.Context) error {
		if err := g.repo.Delete(ctx, actor.UserID, actor.SessionID, g.clock.Now()); err != nil {
			return err
		}
		g.logger.Info(models.AuditActionLogout,
			zap.Int64("user_id", actor.UserID),
			zap.String("session_id", actor.SessionID),
		)
		return nil
	})
}

func (g *SessionGuard) exclusive(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	err := g.locks.WithLock(ctx, strconv.FormatInt(userID, 10), fn)
	if errors.Is(err, distlock.ErrNotAcquired) {
		return models.NewAppError(models.ErrCodeSessionConflict,
			"another sign-in for this account is being resolved", errors.Join(models.ErrSessionConflict, err))
	}
	return err
}

func (g *SessionGuard) refuseRevoked(ctx context.Context, sessionID string) error {
	revoked, err := g.repo.IsRevoked(ctx, sessionID)
	if err != nil {
		return err
	}
	if revoked {
		return models.ErrSessionTerminated
	}
	return nil
}

func (g *SessionGuard) newSession(userID int64, sessionID string) *models.Session {
	now := g.clock.Now()
	return &models.Session{
		ID:           sessionID,
		UserID:       userID,
		LastActivity: now.Unix(),
		CreatedAt:    now,
	}
}
