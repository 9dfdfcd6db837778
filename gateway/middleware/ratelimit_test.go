package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1}, nil)
	handler := limiter.Middleware("rpc")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesCallers(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1}, nil)
	handler := limiter.Middleware("rpc")(okHandler())

	for _, b := range []byte{1, 2} {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyCaller, callerAddr(b)))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("caller %d: expected success, got %d", b, res.Code)
		}
	}
}

func TestRateLimiterDisabledWithoutRate(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{}, nil)
	handler := limiter.Middleware("rpc")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d limited", i)
		}
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	limiter.obtainLimiter("a")
	now = now.Add(10 * time.Minute)
	limiter.obtainLimiter("b")
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("expected idle visitor to be evicted")
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	if got := clientID(req); got != "10.0.0.9" {
		t.Fatalf("unexpected client id %q", got)
	}
	req.Header.Set("X-Real-IP", "192.168.1.5")
	if got := clientID(req); got != "192.168.1.5" {
		t.Fatalf("unexpected client id %q", got)
	}
}
