package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Brownie44l1/marketguard/internal/clock"
	"github.com/Brownie44l1/marketguard/internal/models"
	"go.uber.org/zap"
)

type SystemLockRepositoryInterface interface {
	Ensure(ctx context.Context, key string, now time.Time) error
	Get(ctx context.Context, key string) (*models.SystemLock, error)
	CompareAndSet(ctx context.Context, expected, next *models.SystemLock) (bool, error)
	Put(ctx context.Context, lock *models.SystemLock) error
}

// ==============================================
// SYSTEM LOCK SERVICE
// ==============================================

// SystemLockService drives one lock key. Nothing counts down in the
// background: a pending lock becomes locked the first time it is read after
// its lock time.
type SystemLockService struct {
	repo   SystemLockRepositoryInterface
	clock  clock.Clock
	key    string
	delay  time.Duration
	logger *zap.Logger
}

func NewSystemLockService(repo SystemLockRepositoryInterface, clk clock.Clock, key string, delay time.Duration, logger *zap.Logger) *SystemLockService {
	if delay <= 0 {
		delay = models.DefaultLockDelay
	}
	return &SystemLockService{repo: repo, clock: clk, key: key, delay: delay, logger: logger}
}

// Provision creates the lock row in the open state if it is missing.
func (s *SystemLockService) Provision(ctx context.Context) error {
	return s.repo.Ensure(ctx, s.key, s.clock.Now())
}

// ==============================================
// GET STATUS
// ==============================================

// maxObserveAttempts bounds how often GetStatus re-reads after losing a race.
const maxObserveAttempts = 3

// GetStatus returns the current state, first materializing a due transition
// from pending_lock to locked.
func (s *SystemLockService) GetStatus(ctx context.Context) (*models.LockStatusView, error) {
	lock, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for attempt := 0; lock.Due(now) && attempt < maxObserveAttempts; attempt++ {
		next := &models.SystemLock{
			Key:       s.key,
			Status:    models.LockLocked,
			UpdatedBy: lock.UpdatedBy,
			UpdatedAt: now,
		}

		swapped, err := s.repo.CompareAndSet(ctx, lock, next)
		if err != nil {
			return nil, err
		}
		if swapped {
			s.logger.Info(models.AuditActionLockActivated,
				zap.String("lock_key", s.key),
				zap.Timep("lock_time", lock.LockTime),
			)
			lock = next
			break
		}

		// Someone else moved the row; look again.
		if lock, err = s.repo.Get(ctx, s.key); err != nil {
			return nil, err
		}
	}

	// Every swap lost yet the row is still due: its trigger time has passed,
	// so it reads as locked whoever ends up writing it.
	if lock.Due(now) {
		return &models.LockStatusView{Key: lock.Key, Status: models.LockLocked}, nil
	}
	return statusView(lock, now), nil
}

// ==============================================
// SCHEDULE / UNLOCK
// ==============================================

// ScheduleLock moves an open lock to pending_lock, due after the configured
// delay. Any other state fails with models.ErrAlreadyInState.
func (s *SystemLockService) ScheduleLock(ctx context.Context, actor models.Actor) (*models.LockStatusView, error) {
	now := s.clock.Now()
	lockTime := now.Add(s.delay)
	actorID := actor.UserID

	expected := &models.SystemLock{Key: s.key, Status: models.LockOpen}
	next := &models.SystemLock{
		Key:       s.key,
		Status:    models.LockPendingLock,
		LockTime:  &lockTime,
		UpdatedBy: &actorID,
		UpdatedAt: now,
	}

	swapped, err := s.repo.CompareAndSet(ctx, expected, next)
	if err != nil {
		return nil, err
	}
	if !swapped {
		current, err := s.repo.Get(ctx, s.key)
		if err != nil {
			return nil, err
		}
		status := current.Status
		if current.Due(now) {
			status = models.LockLocked
		}
		return nil, models.NewAppError(models.ErrCodeAlreadyInState,
			fmt.Sprintf("lock %q is already %s", s.key, status),
			models.ErrAlreadyInState)
	}

	s.logger.Info(models.AuditActionLockScheduled,
		zap.String("lock_key", s.key),
		zap.Int64("updated_by", actorID),
		zap.Time("lock_time", lockTime),
	)
	return statusView(next, now), nil
}

// Unlock forces the lock open from any state.
func (s *SystemLockService) Unlock(ctx context.Context, actor models.Actor) (*models.LockStatusView, error) {
	now := s.clock.Now()
	actorID := actor.UserID
	lock := &models.SystemLock{
		Key:       s.key,
		Status:    models.LockOpen,
		UpdatedBy: &actorID,
		UpdatedAt: now,
	}

	if err := s.repo.Put(ctx, lock); err != nil {
		return nil, err
	}

	s.logger.Info(models.AuditActionUnlocked,
		zap.String("lock_key", s.key),
		zap.Int64("updated_by", actorID),
	)
	return statusView(lock, now), nil
}

func statusView(lock *models.SystemLock, now time.Time) *models.LockStatusView {
	view := &models.LockStatusView{
		Key:      lock.Key,
		Status:   lock.Status,
		LockTime: lock.LockTime,
	}
	if lock.Status == models.LockPendingLock && lock.LockTime != nil {
		remaining := int64(math.Ceil(lock.LockTime.Sub(now).Seconds()))
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingSeconds = &remaining
	}
	return view
}
