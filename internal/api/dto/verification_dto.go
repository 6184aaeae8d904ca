package dto

import (
	"time"

	"github.com/Brownie44l1/marketguard/internal/models"
)

// ==============================================
// VERIFICATION REQUEST DTOs
// ==============================================

// CreateVerificationRequest - start an attribute change
type CreateVerificationRequest struct {
	Type  string `json:"type" binding:"required,oneof=email phone"`
	Value string `json:"value" binding:"required,max=254"`
}

// VerifyCodeRequest - confirm with the delivered code
type VerifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ==============================================
// VERIFICATION RESPONSE DTOs
// ==============================================

type VerificationResponse struct {
	ID          int64      `json:"id"`
	Type        string     `json:"type"`
	TargetValue string     `json:"target_value"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	// DeliveryFailed is set when the request exists but the code could not be
	// sent. Use resend.
	DeliveryFailed bool `json:"delivery_failed,omitempty"`
}

func NewVerificationResponse(req *models.VerificationRequest) VerificationResponse {
	return VerificationResponse{
		ID:          req.ID,
		Type:        string(req.Type),
		TargetValue: req.TargetValue,
		Status:      string(req.Status),
		ExpiresAt:   req.ExpiresAt,
		ResolvedAt:  req.ResolvedAt,
	}
}
