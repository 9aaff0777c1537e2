package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	mw := RateLimitMiddleware(nil, zap.NewNop(), IPKeyFunc)

	req := httptest.NewRequest(http.MethodGet, "/v1/emails", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	if !called {
		t.Error("next handler should be called when limiter is nil")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_EmptyKeyPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	// A non-nil limiter is never consulted when the key func returns "".
	mw := RateLimitMiddleware(nil, zap.NewNop(), func(*http.Request) string { return "" })

	req := httptest.NewRequest(http.MethodGet, "/v1/emails", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	if !called {
		t.Error("next handler should be called for empty key")
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{
			name:       "prefers X-Forwarded-For",
			forwarded:  "203.0.113.7",
			realIP:     "198.51.100.2",
			remoteAddr: "10.0.0.1:1234",
			want:       "ip:203.0.113.7",
		},
		{
			name:       "falls back to X-Real-IP",
			realIP:     "198.51.100.2",
			remoteAddr: "10.0.0.1:1234",
			want:       "ip:198.51.100.2",
		},
		{
			name:       "falls back to remote addr",
			remoteAddr: "10.0.0.1:1234",
			want:       "ip:10.0.0.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := IPKeyFunc(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
