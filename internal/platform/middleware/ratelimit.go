package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// SlidingWindow counts requests per key over a rolling window. Sliding rather
// than fixed windows so a burst straddling a window boundary cannot double
// the effective limit.
type SlidingWindow struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	buckets   map[string][]time.Time
	lastSweep time.Time
}

// NewSlidingWindow builds a limiter allowing limit requests per window per
// key. A limit of zero or less disables it.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it fits the window,
// with the remaining budget and when the oldest counted request falls off.
func (l *SlidingWindow) Allow(key string, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	if l == nil || l.limit <= 0 {
		return true, 0, now
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	cutoff := now.Add(-l.window)
	stamps := l.buckets[key]
	for len(stamps) > 0 && !stamps[0].After(cutoff) {
		stamps = stamps[1:]
	}

	if len(stamps) >= l.limit {
		l.buckets[key] = stamps
		return false, 0, stamps[0].Add(l.window)
	}

	stamps = append(stamps, now)
	l.buckets[key] = stamps
	return true, l.limit - len(stamps), stamps[0].Add(l.window)
}

// sweep drops keys whose every request has aged out, at most once per window.
// Caller holds the lock.
func (l *SlidingWindow) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.window)
	for key, stamps := range l.buckets {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// RateLimit throttles requests per authenticated user, falling back to the
// client IP before authentication. A nil limiter passes everything through.
func RateLimit(limiter *SlidingWindow, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := GetUserID(ctx)
			if key == "" {
				key = clientIP(r)
			}

			now := time.Now()
			allowed, remaining, resetAt := limiter.Allow(key, now)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", GetRequestID(ctx),
				)
				retryAfter := int(resetAt.Sub(now).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"Too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
