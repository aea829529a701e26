package router

import (
	"github.com/gin-gonic/gin"

	"sentinel.app/relay/internal/http/handler"
	"sentinel.app/relay/internal/http/middleware"
	"sentinel.app/relay/internal/service"
	"sentinel.app/relay/internal/service/ratelimit"
)

type RouterConfig struct {
	Agent         handler.AgentInfo
	Authenticator middleware.Authenticator
	Limiter       ratelimit.Limiter
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	agentHandler := handler.NewAgentHandler(cfg.Agent)
	router.GET("/health", agentHandler.Health)
	router.GET("/.well-known/agent.json", agentHandler.Card)

	a2aHandler := handler.NewA2AHandler(services.Agent())
	A2ARouter(router.Group("/a2a"), a2aHandler, cfg)
}
