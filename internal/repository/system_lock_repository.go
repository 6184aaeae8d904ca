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
// SYSTEM LOCK REPOSITORY
// ==============================================

type SystemLockRepository struct {
	db DB
}

func NewSystemLockRepository(db DB) *SystemLockRepository {
	return &SystemLockRepository{db: db}
}

// Ensure provisions the row for key in the open state if it does not exist.
func (r *SystemLockRepository) Ensure(ctx context.Context, key string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO system_locks (lock_key, status, updated_at)
		VALUES ($1, 'open', $2)
		ON CONFLICT (lock_key) DO NOTHING
	`, key, now)
	if err != nil {
		return fmt.Errorf("failed to provision system lock %q: %w", key, err)
	}
	return nil
}

func (r *SystemLockRepository) Get(ctx context.Context, key string) (*models.SystemLock, error) {
	query := `
		SELECT lock_key, status, lock_time, updated_by, updated_at
		FROM system_locks
		WHERE lock_key = $1
	`

	var (
		lock   models.SystemLock
		status string
	)
	err := r.db.QueryRow(ctx, query, key).Scan(
		&lock.Key,
		&status,
		&lock.LockTime,
		&lock.UpdatedBy,
		&lock.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get system lock: %w", err)
	}

	lock.Status = models.LockStatus(status)
	return &lock, nil
}

// CompareAndSet writes next only if the stored status and lock_time still
// equal expected's. It reports whether the row was updated.
func (r *SystemLockRepository) CompareAndSet(ctx context.Context, expected, next *models.SystemLock) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE system_locks
		SET status = $3, lock_time = $4, updated_by = $5, updated_at = $6
		WHERE lock_key = $1 AND status = $2
		  AND lock_time IS NOT DISTINCT FROM $7
	`,
		expected.Key,
		string(expected.Status),
		string(next.Status),
		next.LockTime,
		next.UpdatedBy,
		next.UpdatedAt,
		expected.LockTime,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update system lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Put overwrites the row for lock.Key, creating it if needed.
func (r *SystemLockRepository) Put(ctx context.Context, lock *models.SystemLock) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO system_locks (lock_key, status, lock_time, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lock_key) DO UPDATE
		SET status = EXCLUDED.status,
		    lock_time = EXCLUDED.lock_time,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at
	`,
		lock.Key,
		string(lock.Status),
		lock.LockTime,
		lock.UpdatedBy,
		lock.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write system lock: %w", err)
	}
	return nil
}
