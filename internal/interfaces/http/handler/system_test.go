package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/photocatalog/backend/internal/interfaces/http/dto"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSystemHandler_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewSystemHandler("catalog-sync", "1.0.0", pingerFunc(func(context.Context) error { return nil }))

		w := performRequest(h.Health, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", decode(t, w).Data.(map[string]any)["status"])
	})

	t.Run("database down", func(t *testing.T) {
		h := NewSystemHandler("catalog-sync", "1.0.0", pingerFunc(func(context.Context) error {
			return errors.New("connection refused")
		}))

		w := performRequest(h.Health, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.ErrCodeUnavailable, decode(t, w).Error.Code)
	})
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("catalog-sync", "1.0.0", nil)
	assert.False(t, h.startTime.IsZero())

	w := performRequest(h.GetSystemInfo, http.MethodGet, "/system/info", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "catalog-sync", data["name"])
	assert.Equal(t, "1.0.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("catalog-sync", "1.0.0", nil)

	w := performRequest(h.Ping, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "pong", data["message"])
	_, err := time.Parse(time.RFC3339, data["timestamp"].(string))
	assert.NoError(t, err)
}
