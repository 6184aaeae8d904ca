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
// VERIFICATION REPOSITORY
// ==============================================

type VerificationRepository struct {
	db DB
}

func NewVerificationRepository(db DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// userColumns maps a verification type onto the users column it updates.
// Column names never come from caller input.
var userColumns = map[models.VerificationType]string{
	models.VerificationTypeEmail: "email",
	models.VerificationTypePhone: "phone",
}

func userColumn(t models.VerificationType) (string, error) {
	col, ok := userColumns[t]
	if !ok {
		return "", models.Validationf("unsupported verification type %q", t)
	}
	return col, nil
}

// ==============================================
// CREATE (supersedes older pending requests)
// ==============================================

// Create cancels any pending request of the same (user, type) and inserts req
// in the same transaction. The partial unique index on pending rows catches a
// concurrent create that slipped in between.
func (r *VerificationRepository) Create(ctx context.Context, req *models.VerificationRequest) (superseded int64, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE verification_requests
		SET status = 'cancelled', resolved_at = $3
		WHERE user_id = $1 AND type = $2 AND status = 'pending'
	`, req.UserID, string(req.Type), req.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede pending requests: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO verification_requests (
			user_id, type, target_value, code_hash, status, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING id
	`,
		req.UserID,
		string(req.Type),
		req.TargetValue,
		req.CodeHash,
		req.CreatedAt,
		req.ExpiresAt,
	).Scan(&req.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.Validationf("another %s verification is being created", req.Type)
		}
		return 0, fmt.Errorf("failed to create verification request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit verification request: %w", err)
	}

	req.Status = models.VerificationPending
	return tag.RowsAffected(), nil
}

// ==============================================
// LOOKUP
// ==============================================

// FindByIDAndOwner returns models.ErrNotFound both for unknown ids and for ids
// owned by someone else.
func (r *VerificationRepository) FindByIDAndOwner(ctx context.Context, id, userID int64) (*models.VerificationRequest, error) {
	query := `
		SELECT id, user_id, type, target_value, code_hash, status, created_at, expires_at, resolved_at
		FROM verification_requests
		WHERE id = $1 AND user_id = $2
	`

	var (
		req    models.VerificationRequest
		typ    string
		status string
	)
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&req.ID,
		&req.UserID,
		&typ,
		&req.TargetValue,
		&req.CodeHash,
		&status,
		&req.CreatedAt,
		&req.ExpiresAt,
		&req.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	req.Type = models.VerificationType(typ)
	req.Status = models.VerificationStatus(status)
	return &req, nil
}

// ==============================================
// CONDITIONAL UPDATES
// ==============================================

// Regenerate swaps in a new code hash and expiry while the request is still
// pending. It reports false when the request was already resolved.
func (r *VerificationRepository) Regenerate(ctx context.Context, id, userID int64, codeHash string, expiresAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE verification_requests
		SET code_hash = $3, expires_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, id, userID, codeHash, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to regenerate verification code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel resolves a pending request without applying it.
func (r *VerificationRepository) Cancel(ctx context.Context, id, userID int64, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE verification_requests
		SET status = 'cancelled', resolved_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, id, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel verification request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeAndApply marks req consumed and writes its target value onto the
// owner's account in one transaction. The update only applies while the row
// is pending, unexpired and still carries the code hash the caller checked,
// so at most one caller wins. It reports false when the guard did not match.
func (r *VerificationRepository) ConsumeAndApply(ctx context.Context, req *models.VerificationRequest, now time.Time) (bool, error) {
	col, err := userColumn(req.Type)
	if err != nil {
		return false, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE verification_requests
		SET status = 'consumed', resolved_at = $5
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		  AND code_hash = $3 AND expires_at > $4
	`, req.ID, req.UserID, req.CodeHash, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume verification request: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx,
		fmt.Sprintf(`UPDATE users SET %s = $1, updated_at = $2 WHERE id = $3`, col),
		req.TargetValue, now, req.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, models.Validationf("%s is already in use", req.Type)
		}
		return false, fmt.Errorf("failed to apply verified %s: %w", req.Type, err)
	}
	if tag.RowsAffected() != 1 {
		return false, models.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit verification: %w", err)
	}
	return true, nil
}
