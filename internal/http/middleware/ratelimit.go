package middleware

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentinel.app/relay/internal/service/ratelimit"
)

// RateLimit applies limiter per authenticated caller, falling back to the
// client IP. Limiter backend failures let the request through.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		key := GetCaller(ctx)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		err := limiter.Allow(ctx, key)
		var limitErr *ratelimit.LimitError
		switch {
		case err == nil:
		case errors.As(err, &limitErr):
			secs := int(math.Ceil(limitErr.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": limitErr.Error()})
			return
		default:
			slog.ErrorContext(ctx, "rate limiter unavailable, allowing request", "error", err)
		}

		c.Next()
	}
}
