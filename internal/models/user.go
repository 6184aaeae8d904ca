package models

import (
	"time"
)

// ==============================================
// USER MODEL (Database mapping)
// ==============================================

// User carries only the attributes the security flows touch.
type User struct {
	ID               int64     `db:"id"`
	Email            string    `db:"email"`
	Phone            *string   `db:"phone"`
	CurrentSessionID *string   `db:"current_session_id"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Actor is the authenticated principal an operation runs on behalf of.
type Actor struct {
	UserID    int64
	SessionID string
	IsAdmin   bool
}

// ==============================================
// LOGIN SESSION MODEL
// ==============================================

// InvalidatedActivity marks a session row that is about to be deleted.
const InvalidatedActivity int64 = 0

// Session is one authenticated session row. LastActivity is a unix timestamp;
// zero means the session was evicted and must be treated as terminated.
type Session struct {
	ID           string    `db:"id"`
	UserID       int64     `db:"user_id"`
	LastActivity int64     `db:"last_activity"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *Session) IsInvalidated() bool {
	return s.LastActivity == InvalidatedActivity
}

// ==============================================
// AUDIT ACTION CONSTANTS
// ==============================================
const (
	AuditActionVerificationCreated   = "verification_created"
	AuditActionVerificationResent    = "verification_resent"
	AuditActionVerificationConsumed  = "verification_consumed"
	AuditActionVerificationCancelled = "verification_cancelled"
	AuditActionLockScheduled         = "lock_scheduled"
	AuditActionLockActivated         = "lock_activated"
	AuditActionUnlocked              = "unlocked"
	AuditActionSessionAdopted        = "session_adopted"
	AuditActionSessionDiscarded      = "session_discarded"
	AuditActionLogout                = "logout"
)
