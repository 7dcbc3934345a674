package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicamatics/queueskip/internal/platform/middleware"
)

func TestSlidingWindowAllowsUpToLimit(t *testing.T) {
	l := middleware.NewSlidingWindow(3, time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		allowed, _, _ := l.Allow("user-1", now)
		require.True(t, allowed, "request %d should pass", i+1)
	}
	allowed, remaining, _ := l.Allow("user-1", now)
	require.False(t, allowed)
	require.Zero(t, remaining)
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	l := middleware.NewSlidingWindow(1, time.Minute)
	now := time.Now()

	allowed, _, _ := l.Allow("user-1", now)
	require.True(t, allowed)
	allowed, _, _ = l.Allow("user-1", now)
	require.False(t, allowed)

	allowed, _, _ = l.Allow("user-2", now)
	require.True(t, allowed)
}

func TestSlidingWindowSlides(t *testing.T) {
	l := middleware.NewSlidingWindow(2, time.Minute)
	start := time.Now()

	allowed, _, _ := l.Allow("k", start)
	require.True(t, allowed)
	allowed, _, _ = l.Allow("k", start.Add(30*time.Second))
	require.True(t, allowed)
	allowed, _, _ = l.Allow("k", start.Add(45*time.Second))
	require.False(t, allowed)

	// The first request ages out; the 30s one still counts.
	allowed, _, _ = l.Allow("k", start.Add(70*time.Second))
	require.True(t, allowed)
	allowed, _, _ = l.Allow("k", start.Add(71*time.Second))
	require.False(t, allowed)
}

func TestSlidingWindowNilAndDisabledPassThrough(t *testing.T) {
	var nilLimiter *middleware.SlidingWindow
	allowed, _, _ := nilLimiter.Allow("k", time.Now())
	require.True(t, allowed)

	disabled := middleware.NewSlidingWindow(0, time.Minute)
	for i := 0; i < 100; i++ {
		allowed, _, _ := disabled.Allow("k", time.Now())
		require.True(t, allowed)
	}
}

func rateLimitedHandler(limiter *middleware.SlidingWindow) http.Handler {
	log := slog.New(slog.DiscardHandler)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return middleware.RateLimit(limiter, log)(next)
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	h := rateLimitedHandler(middleware.NewSlidingWindow(2, time.Minute))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.JSONEq(t, `{"error":"rate_limited","error_description":"Too many requests"}`, rec.Body.String())
}

func TestRateLimitMiddlewareKeysByUser(t *testing.T) {
	h := rateLimitedHandler(middleware.NewSlidingWindow(1, time.Minute))

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if userID != "" {
			ctx := context.WithValue(req.Context(), middleware.ContextKeyUserID, userID)
			req = req.WithContext(ctx)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("alice"))
	require.Equal(t, http.StatusTooManyRequests, do("alice"))
	require.Equal(t, http.StatusOK, do("bob"))
}

func TestRateLimitMiddlewareNilLimiterDisabled(t *testing.T) {
	h := rateLimitedHandler(nil)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
