package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/brain"
	"sentinel.app/relay/internal/http/dto"
	"sentinel.app/relay/internal/service"
)

type A2AHandler struct {
	agent service.AgentService
}

func NewA2AHandler(agent service.AgentService) *A2AHandler {
	return &A2AHandler{agent: agent}
}

func (h *A2AHandler) Execute(c *gin.Context) {
	start := time.Now()
	fail := func(status int, msg string) {
		c.JSON(status, dto.ExecuteResponse{
			Success:         false,
			Error:           msg,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		})
	}

	var req dto.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{SkillID: logger.Ptr(req.SkillID)})

	if req.SkillID != service.SkillAnalyzeLogs {
		slog.WarnContext(ctx, "unknown skill requested")
		fail(http.StatusBadRequest, "Unknown skill: "+req.SkillID)
		return
	}

	var input dto.AnalyzeLogsInput
	if len(req.Input) > 0 {
		if err := json.Unmarshal(req.Input, &input); err != nil {
			fail(http.StatusBadRequest, "invalid skill input: "+err.Error())
			return
		}
	}

	result, err := h.agent.AnalyzeLogs(ctx, service.AnalyzeLogsInput{
		UserQuery:   input.UserQuery,
		ServiceName: input.ServiceName,
		ServiceType: input.ServiceType,
		RepoURL:     input.RepoURL,
		ThreadID:    input.ThreadID,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			fail(http.StatusBadRequest, err.Error())
		case errors.Is(err, brain.ErrTurnTimeout):
			slog.WarnContext(ctx, "skill timed out", "error", err)
			fail(http.StatusGatewayTimeout, err.Error())
		default:
			slog.ErrorContext(ctx, "skill execution failed", "error", err)
			_ = c.Error(err)
			fail(http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, dto.ExecuteResponse{
		Success:         true,
		Result:          result,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	})
}
