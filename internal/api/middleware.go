package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryMiddleware catches panics and returns 500.
func (h *APIHandler) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "Panic recovered in HTTP handler",
					slog.String("panic", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				h.sendError(w, "Internal server error", http.StatusInternalServerError, "SERVER_ERROR")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = uuid.NewString()[:8]
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request and counts it by route pattern.
func (h *APIHandler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if h.metrics != nil {
			h.metrics.HTTPRequest(route, rw.statusCode)
		}

		level := slog.LevelDebug
		if rw.statusCode >= 500 {
			level = slog.LevelError
		} else if rw.statusCode >= 400 {
			level = slog.LevelInfo
		}
		h.logger.Log(r.Context(), level, "HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("route", route),
			slog.Int("status", rw.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("correlation_id", w.Header().Get("X-Correlation-ID")))
	})
}

// clientIdleTTL is how long a client's bucket is kept after its last request.
const clientIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands out one token bucket per client address. Buckets idle
// for longer than clientIdleTTL are dropped, so the map only holds recent
// clients.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (c *clientLimiter) allow(client string) bool {
	return c.allowAt(client, time.Now())
}

func (c *clientLimiter) allowAt(client string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= clientIdleTTL {
		for addr, b := range c.clients {
			if now.Sub(b.lastSeen) >= clientIdleTTL {
				delete(c.clients, addr)
			}
		}
		c.lastSweep = now
	}

	b, ok := c.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func (h *APIHandler) rateLimitMiddleware(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if !h.limiter.allow(client) {
			w.Header().Set("Retry-After", "1")
			h.sendError(w, "Too many requests", http.StatusTooManyRequests, "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// applyMiddleware wraps a handler with the middleware stack.
func (h *APIHandler) applyMiddleware(handler http.Handler) http.Handler {
	// Apply in reverse order (last applied = first executed)
	handler = h.rateLimitMiddleware(handler)
	handler = h.loggingMiddleware(handler)
	handler = correlationIDMiddleware(handler)
	handler = h.recoveryMiddleware(handler)
	return handler
}
