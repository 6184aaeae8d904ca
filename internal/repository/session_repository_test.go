package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSessionRepository_CurrentSessionID(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectQuery("LEFT JOIN user_sessions").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(strPtr("sA")))
	current, err := repo.CurrentSessionID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "sA", current)

	mock.ExpectQuery("LEFT JOIN user_sessions").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow((*string)(nil)))
	current, err = repo.CurrentSessionID(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, current)

	mock.ExpectQuery("LEFT JOIN user_sessions").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.CurrentSessionID(ctx, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &models.Session{ID: "sB", UserID: 42, LastActivity: now.Unix(), CreatedAt: now}

	t.Run("claims current when none is live", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewSessionRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE OF u").
			WithArgs(int64(42)).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow((*string)(nil)))
		mock.ExpectExec("INSERT INTO user_sessions").
			WithArgs("sB", int64(42), now.Unix(), now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE users SET current_session_id").
			WithArgs(int64(42), "sB", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		ok, err := repo.Create(ctx, s)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses when another session is current", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewSessionRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE OF u").
			WithArgs(int64(42)).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(strPtr("sA")))
		mock.ExpectRollback()

		ok, err := repo.Create(ctx, s)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_Eviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectExec("SET last_activity = 0").
		WithArgs(int64(42), "sB").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	n, err := repo.InvalidateOthers(ctx, 42, "sB")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO revoked_sessions").
		WithArgs(int64(42), "sB", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM user_sessions").
		WithArgs(int64(42), "sB").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO user_sessions").
		WithArgs("sB", int64(42), now.Unix(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE users SET current_session_id").
		WithArgs(int64(42), "sB", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	evicted, err := repo.AdoptExclusive(ctx, &models.Session{ID: "sB", UserID: 42, LastActivity: now.Unix(), CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_AdoptExclusive_ForeignSessionID(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO revoked_sessions").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("DELETE FROM user_sessions").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO user_sessions").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	_, err := repo.AdoptExclusive(ctx, &models.Session{ID: "someone-elses", UserID: 42, LastActivity: now.Unix(), CreatedAt: now})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DiscardLogoutTouch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectExec("NOT EXISTS").
		WithArgs(int64(42), "sB").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	deleted, err := repo.DeleteIfNotCurrent(ctx, 42, "sB")
	require.NoError(t, err)
	assert.False(t, deleted)

	mock.ExpectBegin()
	mock.ExpectExec("SET current_session_id = NULL").
		WithArgs(int64(42), "sA", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO revoked_sessions").
		WithArgs("sA", int64(42), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM user_sessions WHERE id = \\$1 AND user_id = \\$2").
		WithArgs("sA", int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Delete(ctx, 42, "sA", now))

	mock.ExpectExec("SET last_activity = \\$3").
		WithArgs(int64(42), "sA", now.Unix()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	live, err := repo.Touch(ctx, 42, "sA", now)
	require.NoError(t, err)
	assert.False(t, live)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_IsRevoked(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectQuery("FROM revoked_sessions").
		WithArgs("sA").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	revoked, err := repo.IsRevoked(ctx, "sA")
	require.NoError(t, err)
	assert.True(t, revoked)

	mock.ExpectQuery("FROM revoked_sessions").
		WithArgs("sB").
		WillReturnError(errors.New("connection reset"))
	_, err = repo.IsRevoked(ctx, "sB")
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}
