package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window per-client-IP limiter. Windows are one
// minute; state is in-process, so limits apply per instance.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*rateWindow
}

func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	return &RateLimiter{limit: perMinute, windows: map[string]*rateWindow{}}
}

// Allow reports whether the client may proceed and charges the window.
func (l *RateLimiter) Allow(clientIP string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[clientIP]
	if !ok || now.After(w.resetAt) {
		// Reuse the sweep to drop long-gone clients.
		if len(l.windows) > 10000 {
			for ip, win := range l.windows {
				if now.After(win.resetAt) {
					delete(l.windows, ip)
				}
			}
		}
		l.windows[clientIP] = &rateWindow{count: 1, resetAt: now.Add(time.Minute)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// RateLimitMiddleware rejects clients above the per-minute budget with 429.
func RateLimitMiddleware(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
