package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openveil/pii-gateway/internal/config"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// loggingMiddleware assigns a request ID and logs request start and
// completion. Request bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log := s.logger.WithRequestID(requestID)
		log.Info("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		next.ServeHTTP(rw, r)

		log.Info("HTTP request completed",
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_size", rw.size),
		)
	})
}

// rateLimitMiddleware rejects requests over the per-client budget with 429.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	cfg      config.RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		cfg:      cfg,
		limiters: make(map[string]*clientBucket),
	}
}

// Allow reports whether one request from the client fits in its budget.
func (c *clientLimiter) Allow(clientIP string) bool {
	c.mu.Lock()
	if !c.cfg.Enabled {
		c.mu.Unlock()
		return true
	}

	bucket, ok := c.limiters[clientIP]
	if !ok {
		bucket = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSec), c.cfg.Burst),
		}
		c.limiters[clientIP] = bucket
	}
	bucket.lastSeen = time.Now()
	c.mu.Unlock()

	return bucket.limiter.Allow()
}

// UpdateConfig applies new rate limit settings. Existing buckets are dropped
// so the new rate takes effect immediately.
func (c *clientLimiter) UpdateConfig(cfg config.RateLimitConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg
	c.limiters = make(map[string]*clientBucket)
}

// Cleanup drops buckets idle for longer than maxIdle.
func (c *clientLimiter) Cleanup(maxIdle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, bucket := range c.limiters {
		if bucket.lastSeen.Before(cutoff) {
			delete(c.limiters, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// getRequestID extracts the request ID set by loggingMiddleware.
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}
