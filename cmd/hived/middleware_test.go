package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/config"
	"github.com/BaSui01/agenthive/internal/ctxkeys"
	"github.com/BaSui01/agenthive/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

// =============================================================================
// 🧪 通用中间件
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, strings.HasPrefix(seen, "req-"))
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "client-1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "client-1", seen)
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), Recovery(zap.NewNop()), RequestID())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler(), mark("a"), mark("b"), mark("c")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/v1/agents", "/api/v1/agents"},
		{"/api/v1/agents/top", "/api/v1/agents/top"},
		{"/api/v1/agents/6f1c2b9e-8a34-4c53-9c0e-0d2f3b4a5c6d", "/api/v1/agents/:id"},
		{"/api/v1/tasks/42", "/api/v1/tasks/:id"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	collector := metrics.NewCollector("hived_mw_test", zap.NewNop())
	h := MetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/agents", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "hived_mw_test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// 🧪 CORS 与限流
// =============================================================================

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://ui.example.com"})(okHandler())

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/agents", nil)
	r.Header.Set("Origin", "https://ui.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ui.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/agents", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// 🧪 认证
// =============================================================================

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuth(t *testing.T) {
	cfg := AuthConfig{
		APIKeys:      []string{"k1"},
		JWT:          config.JWTConfig{Secret: "s3cret", Issuer: "hive"},
		SkipPrefixes: []string{"/health"},
	}
	var subject string
	var roles []string
	h := Auth(cfg, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
		roles = ctxkeys.Roles(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid := signHS256(t, "s3cret", jwt.MapClaims{
		"sub":   "ops",
		"iss":   "hive",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	expired := signHS256(t, "s3cret", jwt.MapClaims{
		"sub": "ops",
		"iss": "hive",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongIssuer := signHS256(t, "s3cret", jwt.MapClaims{
		"sub": "ops",
		"iss": "other",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name        string
		path        string
		header      string
		value       string
		wantStatus  int
		wantSubject string
	}{
		{"skip path", "/healthz", "", "", http.StatusOK, ""},
		{"no credentials", "/api/v1/agents", "", "", http.StatusUnauthorized, ""},
		{"valid api key", "/api/v1/agents", "X-API-Key", "k1", http.StatusOK, "api-key"},
		{"bad api key", "/api/v1/agents", "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"valid jwt", "/api/v1/agents", "Authorization", "Bearer " + valid, http.StatusOK, "ops"},
		{"expired jwt", "/api/v1/agents", "Authorization", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong issuer", "/api/v1/agents", "Authorization", "Bearer " + wrongIssuer, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, roles = "", nil
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSubject, subject)
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	r.Header.Set("Authorization", "Bearer "+valid)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, []string{"admin"}, roles)
}

func TestAuth_QueryAPIKey(t *testing.T) {
	h := Auth(AuthConfig{APIKeys: []string{"k1"}, AllowQueryAPIKey: true}, zap.NewNop())(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?api_key=k1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	strict := Auth(AuthConfig{APIKeys: []string{"k1"}}, zap.NewNop())(okHandler())
	w = httptest.NewRecorder()
	strict.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?api_key=k1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthConfig_Enabled(t *testing.T) {
	assert.False(t, AuthConfig{}.Enabled())
	assert.True(t, AuthConfig{APIKeys: []string{"k"}}.Enabled())
	assert.True(t, AuthConfig{JWT: config.JWTConfig{Secret: "s"}}.Enabled())
}
