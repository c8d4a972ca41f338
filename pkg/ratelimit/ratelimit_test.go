package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// rate.NewLimiter(10, 2) starts with 2 tokens in the bucket
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("test-key") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("test-key") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("test-key") {
		t.Error("Third request should be rate limited")
	}

	// 10 req/s = 100ms per token
	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow("test-key") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("a") {
		t.Error("First request for a should be allowed")
	}
	if !limiter.Allow("b") {
		t.Error("First request for b should be allowed")
	}
	if limiter.Allow("a") {
		t.Error("Second request for a should be rate limited")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrappedHandler := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})(handler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rr, httptest.NewRequest("POST", "/api/convert", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("Request %d should succeed, got status %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(rr, httptest.NewRequest("POST", "/api/convert", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Third request should be rate limited, got status %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON error body, got %s", rr.Header().Get("Content-Type"))
	}
}

func TestCleanupOldLimiters(t *testing.T) {
	limiter := NewLimiter(10, 2)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	now = now.Add(10 * time.Minute)
	limiter.Allow("fresh")

	if removed := limiter.CleanupOldLimiters(5 * time.Minute); removed != 1 {
		t.Errorf("Expected 1 limiter removed, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Errorf("Expected 1 limiter left, got %d", limiter.Len())
	}
}

func TestKeyFuncs(t *testing.T) {
	tests := []struct {
		name          string
		keyFunc       KeyFunc
		remoteAddr    string
		xForwardedFor string
		authorization string
		expectedKey   string
	}{
		{
			name:        "Direct connection",
			keyFunc:     IPKeyFunc,
			remoteAddr:  "192.168.1.1:12345",
			expectedKey: "192.168.1.1",
		},
		{
			name:          "Forwarded header ignored by default",
			keyFunc:       IPKeyFunc,
			remoteAddr:    "192.168.1.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "192.168.1.1",
		},
		{
			name:          "Behind trusted proxy",
			keyFunc:       ForwardedIPKeyFunc,
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "203.0.113.1",
		},
		{
			name:          "Trusted proxy chain",
			keyFunc:       ForwardedIPKeyFunc,
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1, 10.0.0.1",
			expectedKey:   "203.0.113.1",
		},
		{
			name:          "Empty forwarded hop",
			keyFunc:       ForwardedIPKeyFunc,
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: " , 10.0.0.1",
			expectedKey:   "127.0.0.1",
		},
		{
			name:          "API key",
			keyFunc:       APIKeyFunc(IPKeyFunc),
			remoteAddr:    "192.168.1.1:12345",
			authorization: "Bearer abc",
			expectedKey:   "key:Bearer abc",
		},
		{
			name:        "API key falls back to IP",
			keyFunc:     APIKeyFunc(IPKeyFunc),
			remoteAddr:  "192.168.1.1:12345",
			expectedKey: "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}

			key := tt.keyFunc(req)
			if key != tt.expectedKey {
				t.Errorf("Expected key %s, got %s", tt.expectedKey, key)
			}
		})
	}
}

func TestRotatingHeadersShareOneBucket(t *testing.T) {
	limiter := NewLimiter(1, 1)
	handler := limiter.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("Authorization", fmt.Sprintf("Bearer x%d", i))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}

	if allowed != 1 {
		t.Errorf("Expected 1 allowed request, got %d", allowed)
	}
	if limiter.Len() != 1 {
		t.Errorf("Expected 1 tracked key, got %d", limiter.Len())
	}
}
