package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterBurstThenReject(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{PerMinute: 60, Burst: 3})

	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d within burst was rejected", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Fatal("request past the burst was allowed")
	}
	// A different client has its own bucket.
	if !l.allow("5.6.7.8") {
		t.Fatal("fresh client was rejected")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{PerMinute: 60, Burst: 1})
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4444"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("ip = %q", got)
	}
}
