package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// newTestRateLimiter creates a RateLimiter suitable for testing (no
// background cleanup).
func newTestRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		config: RateLimiterConfig{
			MaxRequests:     maxRequests,
			Window:          window,
			CleanupInterval: 1 * time.Hour, // won't fire during test
		},
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})
}

func analyzeRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/neo-analyze", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimit_UnderLimit(t *testing.T) {
	rl := newTestRateLimiter(5, 1*time.Minute)
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	rl := newTestRateLimiter(3, 1*time.Minute)
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("error = %q, want %q", body["error"], "rate limit exceeded")
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	rl := newTestRateLimiter(2, 1*time.Minute)
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
		if rec.Code != http.StatusOK {
			t.Errorf("client A request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("client A 3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("10.0.0.1:54321"))
	if rec.Code != http.StatusOK {
		t.Errorf("client B request: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimit_KeyedByHostNotPort(t *testing.T) {
	rl := newTestRateLimiter(1, 1*time.Minute)
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Same client on a new connection (different source port) shares the
	// window.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:23456"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request new port: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestRateLimit_XForwardedForTakesPriority(t *testing.T) {
	rl := newTestRateLimiter(1, 1*time.Minute)
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	// Two requests via the same proxy for different original clients.
	req := analyzeRequest("10.0.0.2:1111")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first client via proxy: status = %d, want %d", rec.Code, http.StatusOK)
	}

	req = analyzeRequest("10.0.0.2:1111")
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("second client via proxy: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Repeat from the first client exhausts its window.
	req = analyzeRequest("10.0.0.2:1111")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("repeat client via proxy: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestRateLimit_WindowExpiry(t *testing.T) {
	mu := sync.Mutex{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rl := &RateLimiter{
		config: RateLimiterConfig{
			MaxRequests:     2,
			Window:          1 * time.Minute,
			CleanupInterval: 1 * time.Hour,
		},
		nowFunc: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
		stopCh: make(chan struct{}),
	}
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d at t=0: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request at t=0: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, analyzeRequest("192.168.1.100:12345"))
	if rec.Code != http.StatusOK {
		t.Errorf("request after window expiry: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newTestRateLimiter(3, 1*time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("key1")
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter := rl.Allow("key1")
	if allowed {
		t.Error("4th request should be denied")
	}
	if retryAfter < 1 {
		t.Errorf("retryAfter = %d, want >= 1", retryAfter)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	mu := sync.Mutex{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rl := &RateLimiter{
		config: RateLimiterConfig{
			MaxRequests:     2,
			Window:          1 * time.Minute,
			CleanupInterval: 100 * time.Millisecond,
		},
		nowFunc: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
		stopCh: make(chan struct{}),
	}

	rl.Allow("client-stale")
	rl.Allow("client-stale")

	if _, ok := rl.windows.Load("client-stale"); !ok {
		t.Fatal("expected client-stale to exist")
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	go rl.cleanup()
	time.Sleep(300 * time.Millisecond)
	rl.Stop()

	if _, ok := rl.windows.Load("client-stale"); ok {
		t.Error("expected client-stale to be cleaned up")
	}
}

func TestPruneExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-1 * time.Minute)

	timestamps := []time.Time{
		now.Add(-2 * time.Minute),  // expired
		now.Add(-90 * time.Second), // expired
		now.Add(-30 * time.Second), // still valid
		now,                        // still valid
	}

	result := pruneExpired(timestamps, cutoff)
	if len(result) != 2 {
		t.Errorf("pruneExpired returned %d entries, want 2", len(result))
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	if got := clientKey(req); got != "192.168.1.100" {
		t.Errorf("clientKey = %q, want host without port", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	if got := clientKey(req); got != "203.0.113.7" {
		t.Errorf("clientKey = %q, want first forwarded hop", got)
	}
}
