package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Brownie44l1/marketguard/internal/api/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func setupHealth(checks map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHealthHandler(checks).RegisterRoutes(r)
	return r
}

func TestHealth(t *testing.T) {
	r := setupHealth(nil)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
}

func TestReadiness(t *testing.T) {
	ok := pingFunc(func(ctx context.Context) error { return nil })
	down := pingFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") })

	t.Run("all dependencies up", func(t *testing.T) {
		r := setupHealth(map[string]Pinger{"database": ok, "redis": ok})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp dto.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "ok", resp.Checks["redis"])
	})

	t.Run("redis down", func(t *testing.T) {
		r := setupHealth(map[string]Pinger{"database": ok, "redis": down})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp dto.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "unavailable", resp.Checks["redis"])
		assert.Equal(t, "ok", resp.Checks["database"])
	})
}
