package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxClients bounds the number of per-client limiters kept in memory
const maxClients = 10000

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64 // Requests per second
	Burst          int     // Maximum burst size
	PerUser        bool    // Key by JWT user id when authenticated
	GlobalLimit    bool    // Global rate limit across all clients
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for clients
type RateLimiter struct {
	config  RateLimitConfig
	clients map[string]*client
	mu      sync.Mutex
	global  *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		clients: make(map[string]*client),
		now:     time.Now,
	}
	if config.GlobalLimit {
		rl.global = rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.Burst)
	}
	return rl
}

// getLimiter returns the rate limiter for a specific key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if c, ok := rl.clients[key]; ok {
		c.lastSeen = now
		return c.limiter
	}

	if len(rl.clients) >= maxClients {
		rl.prune(now)
	}

	c := &client{
		limiter:  rate.NewLimiter(rate.Limit(rl.config.RequestsPerSec), rl.config.Burst),
		lastSeen: now,
	}
	rl.clients[key] = c
	return c.limiter
}

// prune drops clients idle for more than a minute, or every client when
// none is idle. Caller holds mu.
func (rl *RateLimiter) prune(now time.Time) {
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > time.Minute {
			delete(rl.clients, key)
		}
	}
	if len(rl.clients) >= maxClients {
		rl.clients = make(map[string]*client)
	}
}

// Clients returns the number of tracked clients
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			if limiter.global != nil && !limiter.global.Allow() {
				writeRateLimitError(w, "Global rate limit exceeded")
				return
			}

			key := getClientIP(r)
			if limiter.config.PerUser {
				if claims, ok := GetClaimsFromContext(r.Context()); ok {
					key = "user:" + claims.UserID
				}
			}

			clientLimiter := limiter.getLimiter(key)
			if !clientLimiter.Allow() {
				writeRateLimitError(w, fmt.Sprintf("Rate limit exceeded for %s", key))
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.Burst))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(clientLimiter.Tokens())))

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeRateLimitError writes a rate limit error response
func writeRateLimitError(w http.ResponseWriter, message string) {
	w.Header().Set("Retry-After", "1")
	writeJSONError(w, message, http.StatusTooManyRequests)
}
