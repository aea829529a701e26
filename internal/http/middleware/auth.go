package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/service/identity"
)

type contextKey string

const callerContextKey contextKey = "caller"

// Authenticator resolves the caller from an Authorization header.
// Implemented by *identity.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (string, error)
}

// RequireCaller rejects requests without an allowed bearer identity and
// attaches the caller to the request context.
func RequireCaller(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		caller, err := auth.Authenticate(ctx, c.GetHeader("Authorization"))
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, identity.ErrForbidden) {
				status = http.StatusForbidden
			}
			slog.WarnContext(ctx, "a2a request rejected", "status", status, "reason", err.Error())
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		ctx = context.WithValue(ctx, callerContextKey, caller)
		ctx = logger.WithLogFields(ctx, logger.LogFields{Caller: logger.Ptr(caller)})
		c.Request = c.Request.WithContext(ctx)

		slog.InfoContext(ctx, "a2a request authenticated")
		c.Next()
	}
}

// GetCaller returns the authenticated caller, or "" outside RequireCaller.
func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(callerContextKey).(string)
	return caller
}
