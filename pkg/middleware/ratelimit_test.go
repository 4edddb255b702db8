package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/audit"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute, BurstSize: 2})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 62; i++ {
		ok, err := rl.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "a")
	assert.False(t, ok)

	// other keys have their own bucket
	ok, _ = rl.Allow(ctx, "b")
	assert.True(t, ok)

	// sixty requests per minute refill one token per second
	now = now.Add(time.Second)
	ok, _ = rl.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, "a")
	assert.False(t, ok)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	now := time.Now()
	rl.now = func() time.Time { return now }

	_, _ = rl.Allow(context.Background(), "a")
	now = now.Add(3 * time.Second)
	rl.Cleanup()
	assert.Empty(t, rl.buckets)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewDistributedRateLimiter(client, RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "actor:alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "actor:alice")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("modgraph:ratelimit:actor:alice"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, "actor:alice")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Reset(ctx, "actor:alice"))
	assert.False(t, mr.Exists("modgraph:ratelimit:actor:alice"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingLimiter) Config() RateLimitConfig                      { return DefaultRateLimitConfig() }

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	handler := NewRateLimitMiddleware(limiter, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(method, actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/modules", nil)
		if actor != "" {
			req = req.WithContext(audit.WithActor(req.Context(), actor))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, serve(http.MethodPost, "alice").Code)
	w := serve(http.MethodPost, "alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limited")

	// reads pass, other actors have their own budget
	assert.Equal(t, http.StatusNoContent, serve(http.MethodGet, "alice").Code)
	assert.Equal(t, http.StatusNoContent, serve(http.MethodPost, "bob").Code)

	// anonymous callers are keyed by address
	assert.Equal(t, http.StatusNoContent, serve(http.MethodDelete, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodDelete, "").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	handler := NewRateLimitMiddleware(failingLimiter{}, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3")
	assert.Equal(t, "10.0.0.3", clientIP(req))
}
