// Per-client budgeting for endpoints that spend model tokens, like option
// generation. Fixed-window counters in memory, keyed by caller IP.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter grants each caller a fixed number of requests per window.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	budget  int
	window  time.Duration
}

type clientWindow struct {
	remaining int
	openedAt  time.Time
}

// NewRateLimiter allows budget requests per caller per window. Stale caller
// entries are swept hourly.
func NewRateLimiter(budget int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientWindow),
		budget:  budget,
		window:  window,
	}
	go func() {
		for {
			time.Sleep(time.Hour)
			rl.sweep()
		}
	}()
	return rl
}

// Allow consumes one request from the caller's budget, opening a fresh
// window when the previous one has expired.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.clients[ip]
	if !ok || now.Sub(w.openedAt) >= rl.window {
		rl.clients[ip] = &clientWindow{remaining: rl.budget - 1, openedAt: now}
		return true
	}
	if w.remaining > 0 {
		w.remaining--
		return true
	}
	return false
}

// RetryAfter returns whole seconds until the caller's window reopens.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[ip]
	if !ok {
		return 0
	}
	remaining := rl.window - time.Since(w.openedAt)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, w := range rl.clients {
		if now.Sub(w.openedAt) > 2*rl.window {
			delete(rl.clients, ip)
		}
	}
}

// RateLimitMiddleware rejects callers over budget with 429 and a Retry-After
// header.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(ip)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// clientIP prefers the first hop of X-Forwarded-For, falling back to the
// peer address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
