package handlers

import (
	"errors"
	"net/http"

	"github.com/Brownie44l1/marketguard/internal/api/dto"
	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ==============================================
// HELPER FUNCTIONS
// ==============================================

// respondSuccess sends a successful JSON response
func respondSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// respondError sends an error JSON response and stops the chain
func respondError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, dto.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    code,
		Message: message,
	})
}

// respondServiceError maps service errors to appropriate HTTP status codes and responses
func respondServiceError(c *gin.Context, logger *zap.Logger, err error) {
	statusCode, code, message := mapServiceError(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	respondError(c, statusCode, code, message)
}

// mapServiceError maps service errors to HTTP status codes and client-safe messages
func mapServiceError(err error) (int, string, string) {
	switch {
	// Every failed verify gets the same body
	case errors.Is(err, models.ErrInvalidOrExpired):
		return http.StatusBadRequest, models.ErrCodeVerificationFailed, "Verification failed"

	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, models.ErrCodeValidationFailed, appMessage(err, "Invalid value")

	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrCodeNotFound, "Not found"

	case errors.Is(err, models.ErrAlreadyInState):
		return http.StatusConflict, models.ErrCodeAlreadyInState, appMessage(err, "Already in requested state")

	case errors.Is(err, models.ErrSessionConflict):
		return http.StatusConflict, models.ErrCodeSessionConflict, appMessage(err, "Another session is active")

	case errors.Is(err, models.ErrSessionTerminated):
		return http.StatusUnauthorized, models.ErrCodeSessionTerminated, "Session has ended, sign in again"

	case errors.Is(err, models.ErrDispatchFailure):
		return http.StatusBadGateway, models.ErrCodeDispatchFailed, appMessage(err, "Code could not be delivered")

	default:
		return http.StatusInternalServerError, models.ErrCodeInternalError, "Internal server error"
	}
}

func appMessage(err error, fallback string) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
