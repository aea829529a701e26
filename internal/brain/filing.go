package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/service/issue_tracker"
)

const wontfixLabel = "wontfix"

type filingHandler struct {
	deps Deps
}

func (h *filingHandler) Edges() []Edge {
	return []Edge{EdgeDone}
}

func (h *filingHandler) Handle(ctx context.Context, in HandlerInput) (HandlerUpdate, error) {
	if len(in.Issues) == 0 {
		return HandlerUpdate{Reply: "There were no issues to file.", SetIssues: true}, nil
	}
	if in.RepoTarget == "" {
		return HandlerUpdate{}, ErrMissingRepoTarget
	}

	existing, err := h.deps.listIssues(ctx, in.RepoTarget)
	if err != nil {
		return HandlerUpdate{}, err
	}

	var (
		filed   []model.CreatedItem
		skipped []string
		lines   []string
		failed  int
	)
	for _, issue := range in.Issues {
		title := issue.Title()
		if title == "" {
			continue
		}

		if reason, dup := duplicateOf(title, existing); dup {
			skipped = append(skipped, fmt.Sprintf("%s: %s", title, reason))
			lines = append(lines, fmt.Sprintf("- Skipped %q: %s", title, reason))
			continue
		}

		item, err := h.deps.createIssue(ctx, in.RepoTarget, issue_tracker.CreateRequest{
			Title:  title,
			Body:   issueBody(issue),
			Labels: []string{string(issue.Priority)},
		})
		if err != nil {
			if ctx.Err() != nil {
				return HandlerUpdate{}, ctx.Err()
			}
			slog.ErrorContext(ctx, "failed to create issue", "error", err, "title", title)
			failed++
			lines = append(lines, fmt.Sprintf("- Failed to create %q: %v", title, err))
			continue
		}

		filed = append(filed, *item)
		// Later issues in the same batch see this one as open.
		existing = append(existing, model.TrackedItem{
			Number: item.Number,
			Title:  title,
			State:  model.ItemStateOpen,
			URL:    item.URL,
		})
		lines = append(lines, fmt.Sprintf("- Created #%d %q: %s", item.Number, title, item.URL))
	}

	slog.InfoContext(ctx, "filing finished",
		"repo", in.RepoTarget,
		"created", len(filed),
		"skipped", len(skipped),
		"failed", failed)

	summary := fmt.Sprintf("Created %d issue(s) in %s, skipped %d", len(filed), in.RepoTarget, len(skipped))
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	reply := summary + ".\n" + strings.Join(lines, "\n")

	return HandlerUpdate{
		Reply:     strings.TrimSpace(reply),
		Output:    summary,
		SetIssues: true,
		Filed:     filed,
		Skipped:   skipped,
	}, nil
}

// duplicateOf reports why title must not be filed again, if it must not.
// Open items with the same title and closed items labelled wontfix block it.
func duplicateOf(title string, existing []model.TrackedItem) (string, bool) {
	for _, item := range existing {
		if !strings.EqualFold(strings.TrimSpace(item.Title), title) {
			continue
		}
		switch {
		case item.State == model.ItemStateOpen:
			return fmt.Sprintf("already open as #%d", item.Number), true
		case item.HasLabel(wontfixLabel):
			return fmt.Sprintf("closed as wontfix (#%d)", item.Number), true
		}
	}
	return "", false
}

func issueBody(issue model.Issue) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(issue.Description))
	b.WriteString("\n\n**Priority:** ")
	b.WriteString(string(issue.Priority))
	if len(issue.Evidence) > 0 {
		b.WriteString("\n\n**Log evidence:**\n```\n")
		for _, line := range issue.Evidence {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("```")
	}
	b.WriteString("\n\n_Filed automatically from log analysis._\n")
	return b.String()
}
