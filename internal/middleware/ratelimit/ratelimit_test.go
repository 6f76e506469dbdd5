package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 3, CleanupInterval: time.Hour})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("fourth request should be rejected")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("different client should have its own window")
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Hour})
	defer l.Stop()

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("10.0.0.1"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request: status %d", rec.Code)
	}

	rec := do("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatal("missing Retry-After header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	if rec := do("10.0.0.2"); rec.Code != http.StatusNoContent {
		t.Fatalf("other client: status %d", rec.Code)
	}
}

func TestForwardedForKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	if got := clientKey(req); got != "203.0.113.7" {
		t.Fatalf("clientKey = %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientKey(req); got != "127.0.0.1" {
		t.Fatalf("clientKey = %q", got)
	}
}

func TestDropStale(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 5, CleanupInterval: time.Hour})
	defer l.Stop()

	l.Allow("a")
	l.Allow("b")

	l.mu.Lock()
	l.clients["a"].start = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	l.dropStale()
	if n := l.ActiveClients(); n != 1 {
		t.Fatalf("ActiveClients = %d, want 1", n)
	}
}
