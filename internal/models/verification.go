package models

import (
	"time"
)

// ==============================================
// VERIFICATION REQUEST MODEL
// ==============================================

// VerificationType tags which account attribute an OTP flow targets.
type VerificationType string

const (
	VerificationTypeEmail VerificationType = "email"
	VerificationTypePhone VerificationType = "phone"
)

// VerificationStatus replaces a single terminal flag so the audit trail keeps
// why a request stopped being usable. Expiry is never stored.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationConsumed  VerificationStatus = "consumed"
	VerificationCancelled VerificationStatus = "cancelled"
)

type VerificationRequest struct {
	ID          int64              `db:"id" json:"id"`
	UserID      int64              `db:"user_id" json:"user_id"`
	Type        VerificationType   `db:"type" json:"type"`
	TargetValue string             `db:"target_value" json:"target_value"`
	CodeHash    string             `db:"code_hash" json:"-"`
	Status      VerificationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time          `db:"expires_at" json:"expires_at"`
	ResolvedAt  *time.Time         `db:"resolved_at" json:"resolved_at,omitempty"`
}

func (v *VerificationRequest) IsTerminal() bool {
	return v.Status != VerificationPending
}

// IsExpired treats the expiry instant itself as expired.
func (v *VerificationRequest) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

func (v *VerificationRequest) IsUsable(now time.Time) bool {
	return !v.IsTerminal() && !v.IsExpired(now)
}

// ==============================================
// OTP CONFIGURATION
// ==============================================
const (
	OTPLength        = 6
	DefaultOTPExpiry = 15 * time.Minute
)
