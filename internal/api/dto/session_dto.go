package dto

import "github.com/Brownie44l1/marketguard/internal/models"

// ==============================================
// SESSION DTOs
// ==============================================

type ConflictResponse struct {
	Conflict bool `json:"conflict"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// AccountResponse - the attributes verification flows change
type AccountResponse struct {
	ID               int64   `json:"id"`
	Email            string  `json:"email"`
	Phone            *string `json:"phone,omitempty"`
	CurrentSessionID *string `json:"current_session_id,omitempty"`
}

func NewAccountResponse(u *models.User) AccountResponse {
	return AccountResponse{
		ID:               u.ID,
		Email:            u.Email,
		Phone:            u.Phone,
		CurrentSessionID: u.CurrentSessionID,
	}
}
