// Package ratelimit provides per-client token bucket rate limiting. Every
// request draws from the client's general bucket; state-changing requests
// also draw from a smaller write bucket.
package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/splitledger/internal/middleware/realip"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled bool
	// RequestsPerMin is the sustained rate per client across all requests
	RequestsPerMin int
	// BurstSize is the maximum burst size of the general bucket
	BurstSize int
	// WritesPerMin bounds POST, PUT, PATCH and DELETE per client. Zero disables
	// the write bucket.
	WritesPerMin int
	// CleanupMinutes is how long an idle client is remembered
	CleanupMinutes int
}

// client holds the buckets of one client address
type client struct {
	general  *rate.Limiter
	writes   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks buckets per client address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	cfg     Config
	idle    time.Duration
	now     func() time.Time
}

// exemptPaths are never limited. The event stream is a single long-lived
// connection per subscriber.
var exemptPaths = map[string]bool{
	"/health":        true,
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/api/v1/events": true,
}

// New creates a RateLimiter. Call Run to evict idle clients.
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		cfg:     cfg,
		idle:    idle,
		now:     time.Now,
	}
}

// Run evicts idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) clientFor(key string) *client {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if c, ok := rl.clients[key]; ok {
		c.lastSeen = rl.now()
		return c
	}

	c := &client{
		general:  rate.NewLimiter(perMinute(rl.cfg.RequestsPerMin), rl.cfg.BurstSize),
		lastSeen: rl.now(),
	}
	if rl.cfg.WritesPerMin > 0 {
		burst := rl.cfg.WritesPerMin / 6
		if burst < 1 {
			burst = 1
		}
		c.writes = rate.NewLimiter(perMinute(rl.cfg.WritesPerMin), burst)
	}
	rl.clients[key] = c
	return c
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		c := rl.clientFor(realip.GetClientIP(r))

		if !c.general.Allow() {
			tooMany(w, c.general)
			return
		}
		if c.writes != nil && isWrite(r.Method) && !c.writes.Allow() {
			tooMany(w, c.writes)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func tooMany(w http.ResponseWriter, l *rate.Limiter) {
	retry := 60
	if l.Limit() > 0 {
		if secs := int(1/float64(l.Limit())) + 1; secs < retry {
			retry = secs
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "RATE_LIMIT_EXCEEDED",
			"message": "Too many requests. Please try again later.",
		},
	})
}

// Middleware returns rate limiting middleware for cfg, or a pass-through when
// disabled. Idle clients are evicted until ctx is done.
func Middleware(ctx context.Context, cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := New(cfg)
	go rl.Run(ctx)
	return rl.Middleware
}
