package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewDatabaseHealthCheck("database", func(context.Context) error { return errors.New("down") }))

	mux := http.NewServeMux()
	h.Register(mux, VersionInfo{Version: "v1"})

	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantState  string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"all pass", []HealthCheck{
			NewDatabaseHealthCheck("database", func(context.Context) error { return nil }),
		}, http.StatusOK, "healthy"},
		{"one fails", []HealthCheck{
			NewDatabaseHealthCheck("database", func(context.Context) error { return errors.New("connection refused") }),
			NewDatabaseHealthCheck("other", func(context.Context) error { return nil }),
		}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil)
			for _, c := range tt.checks {
				h.RegisterCheck(c)
			}
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantState, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "fail", status.Checks["database"].Status)
				assert.Equal(t, "connection refused", status.Checks["database"].Message)
				assert.Equal(t, "pass", status.Checks["other"].Status)
			}
		})
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)
	w := httptest.NewRecorder()
	h.HandleVersion(VersionInfo{Version: "1.0.0", BuildTime: "2026-01-01", GitCommit: "abc"})(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	data := raw["data"].(map[string]any)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "abc", data["gitCommit"])
}
