package models

import "time"

type LockStatus string

const (
	LockOpen        LockStatus = "open"
	LockPendingLock LockStatus = "pending_lock"
	LockLocked      LockStatus = "locked"
)

const DefaultLockDelay = 60 * time.Second

// SystemLock is the singleton row for one lock key. LockTime is non-nil
// exactly when Status is LockPendingLock.
type SystemLock struct {
	Key       string     `db:"lock_key"`
	Status    LockStatus `db:"status"`
	LockTime  *time.Time `db:"lock_time"`
	UpdatedBy *int64     `db:"updated_by"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// Due reports whether a pending lock has reached its trigger time.
func (l *SystemLock) Due(now time.Time) bool {
	return l.Status == LockPendingLock && l.LockTime != nil && !l.LockTime.After(now)
}

// LockStatusView is what getStatus returns. RemainingSeconds is nil unless the
// lock is pending.
type LockStatusView struct {
	Key              string     `json:"key"`
	Status           LockStatus `json:"status"`
	LockTime         *time.Time `json:"lock_time,omitempty"`
	RemainingSeconds *int64     `json:"remaining_seconds"`
}
