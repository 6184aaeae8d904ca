package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Brownie44l1/marketguard/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *pgxpool.Pool and *distlock.Locker.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health - returns API health status
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:    "healthy",
		Service:   "marketguard",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /ready - pings every dependency
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := map[string]string{"api": "ok"}
	for name, dep := range h.checks {
		if err := dep.Ping(ctx); err != nil {
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, dto.HealthResponse{
		Status:    state,
		Service:   "marketguard",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    results,
	})
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Readiness)
}
