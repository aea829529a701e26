package dto

import (
	"encoding/json"
	"time"
)

type ExecuteRequest struct {
	SkillID string          `json:"skill_id" binding:"required"`
	Input   json.RawMessage `json:"input"`
}

// AnalyzeLogsInput is the input object of the analyze_and_monitor_logs skill.
// Times are RFC 3339.
type AnalyzeLogsInput struct {
	UserQuery   string     `json:"user_query"`
	ServiceName string     `json:"service_name"`
	ServiceType string     `json:"service_type"`
	RepoURL     string     `json:"repo_url"`
	ThreadID    string     `json:"thread_id"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

type ExecuteResponse struct {
	Success         bool   `json:"success"`
	Result          any    `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

type HealthResponse struct {
	Status          string          `json:"status"`
	Version         string          `json:"version"`
	AvailableSkills []string        `json:"available_skills"`
	Checks          map[string]bool `json:"checks"`
}

type AgentCard struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Version        string             `json:"version"`
	URL            string             `json:"url,omitempty"`
	Skills         []AgentCardSkill   `json:"skills"`
	Authentication AgentCardAuth      `json:"authentication"`
	RateLimit      AgentCardRateLimit `json:"rate_limit"`
}

type AgentCardSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	InputFields []string `json:"input_fields"`
}

type AgentCardAuth struct {
	Type    string   `json:"type"`
	Schemes []string `json:"schemes"`
}

type AgentCardRateLimit struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"window_seconds"`
}
