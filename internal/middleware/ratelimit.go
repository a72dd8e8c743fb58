package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitRecorder counts rejected requests. metrics.Collector implements it.
type RateLimitRecorder interface {
	RecordRateLimited(route string)
}

// RateLimiterConfig sets the per-client budget.
type RateLimiterConfig struct {
	PerMinute       int           // sustained requests per minute per client
	Burst           int           // requests allowed at once before the rate applies
	CleanupInterval time.Duration // how often idle clients are forgotten
}

// DefaultRateLimiterConfig allows 20 requests a minute with a burst of 10.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		PerMinute:       20,
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client IP and route. It guards the
// credential endpoints (login, register, resend) against guessing and mail
// flooding.
type RateLimiter struct {
	config RateLimiterConfig
	limit  rate.Limit
	rec    RateLimitRecorder
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts the background cleanup; call Stop to end it.
func NewRateLimiter(config RateLimiterConfig, rec RateLimitRecorder, logger *slog.Logger) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}
	rl := &RateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.PerMinute) / 60.0),
		rec:     rec,
		logger:  logger,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware limits requests to route. Each route has its own bucket per
// client, so failed logins do not eat into the registration budget.
func (rl *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.limiter(route, ip).Allow() {
				rl.rec.RecordRateLimited(route)
				rl.logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("route", route),
					slog.String("client_ip", ip),
				)
				rl.reject(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientCount returns how many buckets are held.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) limiter(route, ip string) *rate.Limiter {
	key := route + "|" + ip

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, exists := rl.clients[key]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.config.Burst)}
		rl.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops clients idle for more than two cleanup intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.clients, key)
		}
	}
}

// reject writes 429 with a Retry-After of the seconds until one token refills.
func (rl *RateLimiter) reject(w http.ResponseWriter) {
	retryAfter := 1
	if rl.limit > 0 {
		retryAfter = max(1, int(math.Ceil(1.0/float64(rl.limit))))
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate_limited",
		"message": "Too many requests. Please try again later.",
	})
}

// clientIP strips the port from RemoteAddr. Forwarding headers are never
// read here; chi's RealIP rewrites RemoteAddr when the server trusts a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
