package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/internal/model"
)

type issueDetectionHandler struct {
	deps Deps
}

func (h *issueDetectionHandler) Edges() []Edge {
	return []Edge{EdgeDetected, EdgeNone}
}

func (h *issueDetectionHandler) Handle(ctx context.Context, in HandlerInput) (HandlerUpdate, error) {
	if in.RepoTarget == "" {
		return HandlerUpdate{}, ErrMissingRepoTarget
	}

	if in.PendingIssue != nil {
		issue := in.PendingIssue.AsIssue()
		slog.InfoContext(ctx, "filing issue drafted by the user", "title", issue.Title())
		return HandlerUpdate{
			Output:       fmt.Sprintf("Drafted issue from request: %s", issue.Title()),
			Issues:       []model.Issue{issue},
			SetIssues:    true,
			ClearPending: true,
			Edge:         EdgeDetected,
		}, nil
	}

	if in.Service == nil {
		return HandlerUpdate{Reply: msgNoService, Edge: EdgeNone}, nil
	}

	res, reply, err := fetchForHandler(ctx, h.deps, in, logAnswerLimit)
	if err != nil {
		return HandlerUpdate{}, err
	}
	if reply != "" {
		return HandlerUpdate{Reply: reply, Edge: EdgeNone}, nil
	}

	existing, err := h.deps.listIssues(ctx, in.RepoTarget)
	if err != nil {
		// Filing checks duplicates again, so detection can go on without the list.
		slog.WarnContext(ctx, "could not list existing issues for detection", "error", err)
		existing = nil
	}

	text, err := h.deps.complete(ctx, llm.Request{
		SystemPrompt: logAnalystSystemPrompt,
		Prompt:       detectionPrompt(in.Service, existing, res.Entries),
		Temperature:  llm.Temp(0),
	})
	if err != nil {
		return HandlerUpdate{}, fmt.Errorf("detecting issues: %w", err)
	}

	issues, err := parseIssues(text)
	if err != nil {
		return HandlerUpdate{}, err
	}

	if len(issues) == 0 {
		return HandlerUpdate{
			Reply:     fmt.Sprintf("I analyzed %d log entries for %s and found no new issues to file.", len(res.Entries), in.Service.Name),
			SetIssues: true,
			Edge:      EdgeNone,
		}, nil
	}

	titles := make([]string, len(issues))
	for i, issue := range issues {
		titles[i] = fmt.Sprintf("[%s] %s", issue.Priority, issue.Title())
	}
	slog.InfoContext(ctx, "issues detected in logs", "count", len(issues))

	return HandlerUpdate{
		Output:    fmt.Sprintf("Detected %d issue(s): %s", len(issues), strings.Join(titles, "; ")),
		Issues:    issues,
		SetIssues: true,
		Edge:      EdgeDetected,
	}, nil
}

// parseIssues reads the JSON array the model returned, repairing it once if needed.
func parseIssues(text string) ([]model.Issue, error) {
	body := llm.StripCodeFence(text)
	if body == "" {
		return nil, nil
	}

	var raw []model.Issue
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return nil, fmt.Errorf("parsing detected issues: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("parsing detected issues: %w", err)
		}
	}

	issues := make([]model.Issue, 0, len(raw))
	for _, issue := range raw {
		issue.Description = strings.TrimSpace(issue.Description)
		if issue.Description == "" {
			continue
		}
		issue.Priority = model.ParsePriority(string(issue.Priority))
		issues = append(issues, issue)
	}
	return issues, nil
}
