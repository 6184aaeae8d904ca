package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// ==============================================
// SESSION REPOSITORY
// ==============================================

type SessionRepository struct {
	db DB
}

func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CurrentSessionID returns the session users.current_session_id points at,
// or "" when it is unset or its row is gone.
func (r *SessionRepository) CurrentSessionID(ctx context.Context, userID int64) (string, error) {
	var current *string
	err := r.db.QueryRow(ctx, `
		SELECT s.id
		FROM users u
		LEFT JOIN user_sessions s ON s.id = u.current_session_id AND s.user_id = u.id
		WHERE u.id = $1
	`, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("failed to get current session: %w", err)
	}
	if current == nil {
		return "", nil
	}
	return *current, nil
}

func (r *SessionRepository) Get(ctx context.Context, userID int64, sessionID string) (*models.Session, error) {
	var s models.Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, last_activity, created_at
		FROM user_sessions
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID).Scan(&s.ID, &s.UserID, &s.LastActivity, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// IsRevoked reports whether sessionID was evicted or logged out.
func (r *SessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_sessions WHERE id = $1)
	`, sessionID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check revoked session: %w", err)
	}
	return revoked, nil
}

// ==============================================
// LOGIN
// ==============================================

// Create inserts s and makes it current, unless another session is current
// and its row still exists. It reports false in that case and writes nothing.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current *string
	err = tx.QueryRow(ctx, `
		SELECT s.id
		FROM users u
		LEFT JOIN user_sessions s ON s.id = u.current_session_id AND s.user_id = u.id
		WHERE u.id = $1
		FOR UPDATE OF u
	`, s.UserID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, models.ErrNotFound
		}
		return false, fmt.Errorf("failed to lock user: %w", err)
	}
	if current != nil && *current != s.ID {
		return false, nil
	}

	if err := upsertSession(ctx, tx, s); err != nil {
		return false, err
	}
	if err := setCurrent(ctx, tx, s.UserID, s.ID, s.CreatedAt); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit session: %w", err)
	}
	return true, nil
}

// ==============================================
// EVICTION
// ==============================================

// InvalidateOthers zeroes last_activity on every session of userID except
// keepID. It runs outside any transaction so concurrent readers see it at
// once.
func (r *SessionRepository) InvalidateOthers(ctx context.Context, userID int64, keepID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_sessions
		SET last_activity = 0
		WHERE user_id = $1 AND id <> $2
	`, userID, keepID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AdoptExclusive revokes and deletes every other session of s.UserID, makes
// sure s exists and points current_session_id at it, all in one transaction.
func (r *SessionRepository) AdoptExclusive(ctx context.Context, s *models.Session) (evicted int64, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO revoked_sessions (id, user_id, revoked_at)
		SELECT id, user_id, $3 FROM user_sessions
		WHERE user_id = $1 AND id <> $2
		ON CONFLICT (id) DO NOTHING
	`, s.UserID, s.ID, s.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to revoke evicted sessions: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM user_sessions
		WHERE user_id = $1 AND id <> $2
	`, s.UserID, s.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete evicted sessions: %w", err)
	}

	if err := upsertSession(ctx, tx, s); err != nil {
		return 0, err
	}
	if err := setCurrent(ctx, tx, s.UserID, s.ID, s.CreatedAt); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit session adoption: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteIfNotCurrent removes sessionID unless it is the user's current
// session.
func (r *SessionRepository) DeleteIfNotCurrent(ctx context.Context, userID int64, sessionID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM user_sessions s
		WHERE s.id = $2 AND s.user_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM users u
		      WHERE u.id = $1 AND u.current_session_id = s.id
		  )
	`, userID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to discard session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete revokes and removes sessionID and clears current_session_id if it
// pointed there.
func (r *SessionRepository) Delete(ctx context.Context, userID int64, sessionID string, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET current_session_id = NULL, updated_at = $3
		WHERE id = $1 AND current_session_id = $2
	`, userID, sessionID, now); err != nil {
		return fmt.Errorf("failed to clear current session: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO revoked_sessions (id, user_id, revoked_at)
		SELECT id, user_id, $3 FROM user_sessions
		WHERE id = $1 AND user_id = $2
		ON CONFLICT (id) DO NOTHING
	`, sessionID, userID, now); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM user_sessions WHERE id = $1 AND user_id = $2
	`, sessionID, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit logout: %w", err)
	}
	return nil
}

// Touch bumps last_activity on a live, current session. It reports false when
// the session is missing, invalidated or no longer current.
func (r *SessionRepository) Touch(ctx context.Context, userID int64, sessionID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_sessions s
		SET last_activity = $3
		FROM users u
		WHERE s.id = $2 AND s.user_id = $1
		  AND u.id = s.user_id AND u.current_session_id = s.id
		  AND s.last_activity <> 0
	`, userID, sessionID, now.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ==============================================
// HELPERS
// ==============================================

func upsertSession(ctx context.Context, tx pgx.Tx, s *models.Session) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, last_activity, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET last_activity = EXCLUDED.last_activity
		WHERE user_sessions.user_id = EXCLUDED.user_id
	`, s.ID, s.UserID, s.LastActivity, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	// A conflicting id owned by another user leaves nothing written.
	if tag.RowsAffected() != 1 {
		return models.ErrNotFound
	}
	return nil
}

func setCurrent(ctx context.Context, tx pgx.Tx, userID int64, sessionID string, now time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users SET current_session_id = $2, updated_at = $3 WHERE id = $1
	`, userID, sessionID, now)
	if err != nil {
		return fmt.Errorf("failed to set current session: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return models.ErrNotFound
	}
	return nil
}
