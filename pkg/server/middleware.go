package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/observability"
)

// RateLimiter provides per-client rate limiting for the public API.
type RateLimiter struct {
	log      logrus.FieldLogger
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute
// sustained requests per client with the given burst headroom.
func NewRateLimiter(log logrus.FieldLogger, requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	if burst <= 0 {
		burst = 10
	}

	return &RateLimiter{
		log:   log.WithField("component", "rate_limiter"),
		rate:  rate.Limit(float64(requestsPerMinute) / 60.0),
		burst: burst,
	}
}

// getLimiter gets or creates a rate limiter for the given key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))

	return limiter.(*rate.Limiter)
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.getKey(r)

		if !rl.Allow(key) {
			rl.log.WithFields(logrus.Fields{
				"key":  key,
				"path": r.URL.Path,
			}).Warn("Rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)

			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","error_description":"Too many requests. Please try again later."}`))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// getKey returns the rate limit key for a request. A presented session
// identifier buckets the caller; everything else shares an IP bucket.
func (rl *RateLimiter) getKey(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return "session:" + id
	}

	return "ip:" + clientIP(r)
}

// CleanupExpired drops all cached limiters. They are recreated with a
// full bucket on the next request, which is acceptable at an hourly
// cadence.
func (rl *RateLimiter) CleanupExpired() {
	rl.limiters.Range(func(key, _ any) bool {
		rl.limiters.Delete(key)

		return true
	})

	rl.log.Debug("Cleared rate limiters")
}

// StartCleanup starts a background goroutine to clean up stale limiters.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.CleanupExpired()
			case <-stopCh:
				return
			}
		}
	}()
}

// metricsMiddleware records request counts and latency per route.
func (s *service) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
