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
// 🧪 测试辅助类型
// =============================================================================

type stubRunning bool

func (s stubRunning) Running() bool { return bool(s) }

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_Liveness(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(zap.NewNop()).Register(mux, VersionInfo{Version: "1.2.3"})

	for _, path := range []string{"/health", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, "healthy", status.Status)
			assert.False(t, status.Timestamp.IsZero())
		})
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				NewPingCheck("database", func(context.Context) error { return nil }),
				NewHiveCheck(stubRunning(true)),
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "redis down",
			checks: []HealthCheck{
				NewPingCheck("database", func(context.Context) error { return nil }),
				NewPingCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
		{
			name:       "hive stopped",
			checks:     []HealthCheck{NewHiveCheck(stubRunning(false))},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
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
		})
	}
}

func TestHealthHandler_ReadyReportsFailure(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewHiveCheck(stubRunning(false)))

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	result := status.Checks["hive"]
	assert.Equal(t, "fail", result.Status)
	assert.Equal(t, ErrHiveNotRunning.Error(), result.Message)
}

func TestHealthHandler_Version(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(nil).Register(mux, VersionInfo{Version: "1.2.3", GitCommit: "abc"})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data VersionInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "1.2.3", resp.Data.Version)
	assert.Equal(t, "abc", resp.Data.GitCommit)
}
