package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// ==============================================
// USER REPOSITORY
// ==============================================

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT id, email, phone, current_session_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.CurrentSessionID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// CurrentValue returns the user's present value for the attribute a
// verification type targets, or "" when it is unset.
func (r *UserRepository) CurrentValue(ctx context.Context, userID int64, t models.VerificationType) (string, error) {
	col, err := userColumn(t)
	if err != nil {
		return "", err
	}

	var value string
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COALESCE(%s, '') FROM users WHERE id = $1`, col),
		userID,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("failed to get current %s: %w", t, err)
	}
	return value, nil
}

// IsValueTaken reports whether any other user already holds value.
func (r *UserRepository) IsValueTaken(ctx context.Context, t models.VerificationType, value string, exceptUserID int64) (bool, error) {
	col, err := userColumn(t)
	if err != nil {
		return false, err
	}

	var taken bool
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM users WHERE %s = $1 AND id <> $2)`, col),
		value, exceptUserID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check %s uniqueness: %w", t, err)
	}
	return taken, nil
}
