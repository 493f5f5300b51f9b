package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, rps: 0.001, burst: 3})

	for i := 0; i < 3; i++ {
		if !rl.allow("192.0.2.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("192.0.2.1") {
		t.Error("4th request should be limited")
	}
	if !rl.allow("192.0.2.2") {
		t.Error("other IPs have their own bucket")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: false, rps: 0.001, burst: 1})
	for i := 0; i < 10; i++ {
		if !rl.allow("192.0.2.1") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, rps: 1, burst: 1})
	rl.allow("192.0.2.1")
	rl.cleanup(time.Now().Add(time.Hour), time.Minute)
	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors after cleanup = %d, want 0", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, rps: 0.001, burst: 2})
	h := rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), rl)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/rounds", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"ipv4 with port", "192.0.2.1:1234", "", "192.0.2.1"},
		{"ipv6 with port", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"no port", "192.0.2.7", "", "192.0.2.7"},
		{"forwarded list", "10.0.0.1:80", "203.0.113.5, 10.0.0.1", "203.0.113.5"},
		{"forwarded single", "10.0.0.1:80", " 203.0.113.9 ", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	cfg := loadRateLimiterConfig()
	if cfg.enabled || cfg.rps != 2.5 || cfg.burst != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestCORSConfig(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		cfg        *corsConfig
		origin     string
		wantHeader string
	}{
		{"permissive", &corsConfig{permissive: true}, "https://any.example", "*"},
		{"allowed origin", &corsConfig{allowedOrigins: []string{"https://stats.example"}}, "https://stats.example", "https://stats.example"},
		{"blocked origin", &corsConfig{allowedOrigins: []string{"https://stats.example"}}, "https://evil.example", ""},
		{"wildcard", &corsConfig{allowedOrigins: []string{"*.example.com"}}, "https://live.example.com", "https://live.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/live", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			withCORSConfig(ok, tt.cfg).ServeHTTP(rr, req)
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestCORSPreflightRequest(t *testing.T) {
	called := false
	h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }), &corsConfig{permissive: true})
	req := httptest.NewRequest(http.MethodOptions, "/rounds", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
	if called {
		t.Error("preflight reached the handler")
	}
}

func TestLoadCORSConfig(t *testing.T) {
	tests := []struct {
		name           string
		env            string
		permissiveEnv  string
		origins        string
		wantPermissive bool
		wantOrigins    int
	}{
		{"default is permissive", "", "", "", true, 0},
		{"production is restricted", "production", "", "https://a.example, https://b.example", false, 2},
		{"explicit override", "production", "true", "", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("CORS_PERMISSIVE", tt.permissiveEnv)
			t.Setenv("CORS_ALLOWED_ORIGINS", tt.origins)
			cfg := loadCORSConfig()
			if cfg.permissive != tt.wantPermissive || len(cfg.allowedOrigins) != tt.wantOrigins {
				t.Errorf("cfg = %+v", cfg)
			}
		})
	}
}
