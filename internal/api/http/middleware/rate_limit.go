package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware enforces a per-caller token bucket. Callers are
// keyed by the user id set during authentication, falling back to the
// client IP before auth has run.
func RateLimitMiddleware(rps rate.Limit, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters[key]; ok {
			return l
		}
		l := rate.NewLimiter(rps, burst)
		limiters[key] = l
		return l
	}

	return func(c *gin.Context) {
		key := c.GetString("user_db_id")
		if key == "" {
			key = c.ClientIP()
		}

		if !limiterFor(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
