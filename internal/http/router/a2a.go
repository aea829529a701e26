package router

import (
	"github.com/gin-gonic/gin"

	"sentinel.app/relay/internal/http/handler"
	"sentinel.app/relay/internal/http/middleware"
)

// A2ARouter mounts the agent-to-agent endpoints. Authentication runs before
// rate limiting so limits apply per caller.
func A2ARouter(rg *gin.RouterGroup, h *handler.A2AHandler, cfg RouterConfig) {
	rg.Use(middleware.RequireCaller(cfg.Authenticator))
	if cfg.Limiter != nil {
		rg.Use(middleware.RateLimit(cfg.Limiter))
	}
	rg.POST("/execute", h.Execute)
}
