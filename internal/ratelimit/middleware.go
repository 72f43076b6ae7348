package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ClientIP stores gin's resolved client address in the request context.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// Middleware throttles a route on action keyed by the client IP only.
// Routes that key on phone or Destination call the Limiter from their service.
func Middleware(l *Limiter, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Check(c.Request.Context(), action, Scope{IP: c.ClientIP()})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(d.RetryAfter.Seconds()),
			})
			return
		}
		c.Next()
	}
}
