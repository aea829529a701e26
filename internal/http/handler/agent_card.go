package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sentinel.app/relay/internal/http/dto"
	"sentinel.app/relay/internal/service"
)

type AgentInfo struct {
	Name        string
	Description string
	Version     string
	PublicURL   string
	AuthSchemes []string

	RateLimit     int
	RateWindowSec int

	// Checks are the configuration presence flags reported by /health.
	Checks map[string]bool
}

type AgentHandler struct {
	info AgentInfo
}

func NewAgentHandler(info AgentInfo) *AgentHandler {
	return &AgentHandler{info: info}
}

func (h *AgentHandler) Card(c *gin.Context) {
	skills := make([]dto.AgentCardSkill, len(service.Skills))
	for i, s := range service.Skills {
		skills[i] = dto.AgentCardSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			InputFields: s.InputFields,
		}
	}

	c.JSON(http.StatusOK, dto.AgentCard{
		Name:        h.info.Name,
		Description: h.info.Description,
		Version:     h.info.Version,
		URL:         h.info.PublicURL,
		Skills:      skills,
		Authentication: dto.AgentCardAuth{
			Type:    "bearer",
			Schemes: h.info.AuthSchemes,
		},
		RateLimit: dto.AgentCardRateLimit{
			Requests:      h.info.RateLimit,
			WindowSeconds: h.info.RateWindowSec,
		},
	})
}

// Health reports "ok" when every check passes and "degraded" otherwise.
// It always answers 200.
func (h *AgentHandler) Health(c *gin.Context) {
	status := "ok"
	for _, ok := range h.info.Checks {
		if !ok {
			status = "degraded"
			break
		}
	}

	skills := make([]string, len(service.Skills))
	for i, s := range service.Skills {
		skills[i] = s.ID
	}

	checks := h.info.Checks
	if checks == nil {
		checks = map[string]bool{}
	}
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:          status,
		Version:         h.info.Version,
		AvailableSkills: skills,
		Checks:          checks,
	})
}
