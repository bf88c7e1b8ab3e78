package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/testutil"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api/rest/middleware"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/config"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/search"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, cfg Config) (http.Handler, *api.Service, []*descriptor.Real) {
	t.Helper()
	db, images := testutil.Database(t)
	scorer := search.NewScorer(db, search.ScorerConfig{Norm: bow.L1Norm, CacheCapacity: 10})
	svc := api.NewService(scorer, nil)
	srv := NewServer(cfg, svc, nil, observability.NewMetrics())
	return srv.Handler(), svc, images
}

func scoreBody(t *testing.T, m descriptor.Matrix, top int) *bytes.Reader {
	t.Helper()
	req, err := api.NewScoreRequest(m, top)
	if err != nil {
		t.Fatalf("NewScoreRequest failed: %v", err)
	}
	data, _ := json.Marshal(req)
	return bytes.NewReader(data)
}

func TestScore(t *testing.T) {
	handler, _, images := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/score", scoreBody(t, images[2], 2))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp api.ScoreResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Scores) != 2 || resp.Scores[0].ImageID != 2 {
		t.Errorf("Expected image 2 first among 2 scores, got %+v", resp.Scores)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestScore_TopQueryParameter(t *testing.T) {
	handler, _, images := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/score?top=1", scoreBody(t, images[0], 3))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp api.ScoreResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Scores) != 1 {
		t.Errorf("Expected 1 score, got %d", len(resp.Scores))
	}
}

func TestScore_Errors(t *testing.T) {
	handler, svc, _ := newTestServer(t, Config{})

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed json", http.MethodPost, "{", http.StatusBadRequest},
		{"bad shape", http.MethodPost, `{"kind":"real","rows":2,"cols":2,"data":[1]}`, http.StatusBadRequest},
		{"wrong kind", http.MethodPost, `{"kind":"binary","rows":1,"cols":2,"data":[1,2]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/score", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	svc.Scorer().Database().ClearDatabase()
	req := httptest.NewRequest(http.MethodPost, "/v1/score", strings.NewReader(`{"kind":"real","rows":1,"cols":2,"data":[1,2]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 on empty database, got %d", rec.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	handler, _, _ := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var health api.HealthResponse
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	var stats api.StatsResponse
	json.NewDecoder(rec.Body).Decode(&stats)
	if stats.Database.Images != 4 {
		t.Errorf("Expected 4 images, got %d", stats.Database.Images)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _, _ := newTestServer(t, Config{})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vocabtree_requests_total") {
		t.Error("Expected request counter in exposition")
	}
}

func TestAuth(t *testing.T) {
	cfg := Config{Auth: middleware.AuthConfig{
		Enabled:     true,
		JWTSecret:   testSecret,
		PublicPaths: []string{"/v1/health"},
		AdminPaths:  []string{"/v1/stats"},
	}}
	handler, _, _ := newTestServer(t, cfg)

	// public path
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected public health check, got %d", rec.Code)
	}

	// missing token
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	// wrong secret
	bad, _ := middleware.GenerateToken("u1", "alice", []string{"admin"}, "other", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with foreign token, got %d", rec.Code)
	}

	// expired token
	expired, _ := middleware.GenerateToken("u1", "alice", []string{"admin"}, testSecret, -time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with expired token, got %d", rec.Code)
	}

	// non-admin on admin path
	user, _ := middleware.GenerateToken("u2", "bob", []string{"reader"}, testSecret, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+user)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin, got %d", rec.Code)
	}

	// admin
	admin, _ := middleware.GenerateToken("u1", "alice", []string{"admin"}, testSecret, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for admin, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := Config{RateLimit: middleware.RateLimitConfig{
		Enabled:        true,
		RequestsPerSec: 0.001,
		Burst:          2,
	}}
	handler, _, _ := newTestServer(t, cfg)

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", codes[2])
	}

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", rec.Code)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = testSecret

	rc := ConfigFrom(cfg)
	if rc.Port != cfg.Server.HTTPPort {
		t.Errorf("Expected port %d, got %d", cfg.Server.HTTPPort, rc.Port)
	}
	if !rc.Auth.Enabled || rc.Auth.JWTSecret != testSecret {
		t.Errorf("Expected auth carried over, got %+v", rc.Auth)
	}
	if !rc.RateLimit.PerUser {
		t.Error("Expected per-user limits with auth enabled")
	}
}
