package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/brain"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/sanitize"
)

const (
	SkillAnalyzeLogs = "analyze_and_monitor_logs"

	DefaultSkillTimeout = 2 * time.Minute
)

var (
	ErrUnknownSkill = errors.New("unknown skill")
	ErrInvalidInput = errors.New("invalid skill input")
)

// Skill describes one capability advertised on the agent card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	InputFields []string `json:"input_fields"`
}

var Skills = []Skill{{
	ID:          SkillAnalyzeLogs,
	Name:        "Analyze and monitor logs",
	Description: "Reads recent logs of a GCP service, answers questions about them, and files tracker issues for the problems it finds.",
	Tags:        []string{"logs", "monitoring", "gcp", "issues"},
	InputFields: []string{"user_query", "service_name", "service_type", "repo_url", "thread_id", "start_time", "end_time"},
}}

type AnalyzeLogsInput struct {
	UserQuery   string
	ServiceName string
	ServiceType string
	RepoURL     string
	ThreadID    string
	StartTime   *time.Time
	EndTime     *time.Time
}

type AnalysisResult struct {
	ThreadID         string   `json:"thread_id"`
	ServiceName      string   `json:"service_name,omitempty"`
	ServiceType      string   `json:"service_type,omitempty"`
	Analysis         string   `json:"analysis"`
	IssuesIdentified int      `json:"issues_identified"`
	IssuesCreated    int      `json:"issues_created"`
	IssueURLs        []string `json:"issue_urls"`
	RouteHistory     []string `json:"route_history"`
}

// TurnRunner runs one conversation turn. Implemented by *brain.Engine.
type TurnRunner interface {
	SubmitTurn(ctx context.Context, in brain.TurnInput) (*model.ThreadState, error)
}

type AgentService interface {
	AnalyzeLogs(ctx context.Context, in AnalyzeLogsInput) (*AnalysisResult, error)
}

type agentService struct {
	turns   TurnRunner
	timeout time.Duration
	now     func() time.Time
}

func NewAgentService(turns TurnRunner, timeout time.Duration) AgentService {
	if timeout <= 0 {
		timeout = DefaultSkillTimeout
	}
	return &agentService{turns: turns, timeout: timeout, now: time.Now}
}

func (s *agentService) AnalyzeLogs(ctx context.Context, in AnalyzeLogsInput) (*AnalysisResult, error) {
	turn, err := s.turnInput(in)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.service.agent"})
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state, err := s.turns.SubmitTurn(ctx, turn)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", SkillAnalyzeLogs, err)
	}

	result := &AnalysisResult{
		ThreadID:     state.ThreadID,
		Analysis:     state.LastReply(),
		IssueURLs:    []string{},
		RouteHistory: append([]string{}, state.Outputs.Routes...),
	}
	if state.Service != nil {
		result.ServiceName = state.Service.Name
		result.ServiceType = string(state.Service.Category)
	}
	if t := state.LastTurn; t != nil {
		result.IssuesIdentified = t.IssuesIdentified
		result.IssuesCreated = len(t.Filed)
		for _, item := range t.Filed {
			result.IssueURLs = append(result.IssueURLs, item.URL)
		}
	}

	slog.InfoContext(ctx, "skill executed",
		"skill", SkillAnalyzeLogs,
		"thread_id", result.ThreadID,
		"issues_identified", result.IssuesIdentified,
		"issues_created", result.IssuesCreated)
	return result, nil
}

func (s *agentService) turnInput(in AnalyzeLogsInput) (brain.TurnInput, error) {
	turn := brain.TurnInput{
		ThreadID:   strings.TrimSpace(in.ThreadID),
		RepoTarget: strings.TrimSpace(in.RepoURL),
	}

	name := strings.TrimSpace(in.ServiceName)
	if name != "" {
		if _, err := sanitize.Identifier(name, "service_name"); err != nil {
			return brain.TurnInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		category := model.Category(strings.TrimSpace(in.ServiceType))
		if category == "" {
			category = model.CategoryCloudRun
		}
		if _, err := logquery.DefaultTable().Lookup(category); err != nil {
			return brain.TurnInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		turn.Service = &model.ServiceIdentity{Name: name, Category: category}
	}

	switch {
	case in.StartTime != nil:
		end := s.now()
		if in.EndTime != nil {
			end = *in.EndTime
		}
		w := logquery.Window{Start: *in.StartTime, End: end}
		if err := w.Validate(); err != nil {
			return brain.TurnInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		turn.Window = &w
	case in.EndTime != nil:
		return brain.TurnInput{}, fmt.Errorf("%w: end_time requires start_time", ErrInvalidInput)
	}

	turn.Text = strings.TrimSpace(in.UserQuery)
	if turn.Text == "" {
		if turn.Service == nil {
			return brain.TurnInput{}, fmt.Errorf("%w: user_query or service_name is required", ErrInvalidInput)
		}
		turn.Text = fmt.Sprintf("Review the logs for %s service %s and identify any issues.", turn.Service.Category, turn.Service.Name)
	}
	return turn, nil
}
