package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestLogMiddlewareAssignsRequestID(t *testing.T) {
	h := logMiddleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request ID")
	}

	// A caller-supplied ID is preserved.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Request-ID", "ticket-123")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "ticket-123" {
		t.Errorf("expected ticket-123, got %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := authMiddleware("secret", okHandler())

	cases := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"missing key", "/stats", "", "", http.StatusUnauthorized},
		{"bearer token", "/stats", "Authorization", "Bearer secret", http.StatusOK},
		{"api key header", "/stats", "X-API-Key", "secret", http.StatusOK},
		{"wrong key", "/stats", "X-API-Key", "nope", http.StatusUnauthorized},
		{"health is open", "/health", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestAuthMiddlewareDisabledWhenUnset(t *testing.T) {
	h := authMiddleware("", okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected open access, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	h := corsMiddleware("https://portal.example.com", okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/query", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example.com" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}
