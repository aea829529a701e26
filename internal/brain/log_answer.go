package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/sanitize"
)

const (
	logAnswerLimit = 1000

	// Past either threshold the logs are summarized before answering.
	summaryEntryThreshold = 200
	summaryCharThreshold  = 40_000
)

const (
	msgNoService = "Which service should I look at? Name it in your message, for example \"cloud run service my-api\"."
	msgNoLogs    = "No logs found for the specified service and time range."
	msgFetchFail = "I couldn't fetch any logs. Please ensure the service name is correct and that I have the right permissions. Error: %v"
)

type logAnswerHandler struct {
	deps Deps
}

func (h *logAnswerHandler) Edges() []Edge {
	return []Edge{EdgeDone}
}

func (h *logAnswerHandler) Handle(ctx context.Context, in HandlerInput) (HandlerUpdate, error) {
	if in.Service == nil {
		return HandlerUpdate{Reply: msgNoService}, nil
	}

	res, reply, err := fetchForHandler(ctx, h.deps, in, logAnswerLimit)
	if err != nil {
		return HandlerUpdate{}, err
	}
	if reply != "" {
		return HandlerUpdate{Reply: reply}, nil
	}

	logs := strings.Join(res.Entries, "\n")
	var summary string
	if needsSummary(in.Utterance, res.Entries, logs) {
		slog.InfoContext(ctx, "summarizing logs before answering",
			"entries", len(res.Entries),
			"chars", len(logs))

		summary, err = h.deps.complete(ctx, llm.Request{
			SystemPrompt: logAnalystSystemPrompt,
			Prompt:       summaryPrompt(in.Service, res, logs),
		})
		if err != nil {
			return HandlerUpdate{}, fmt.Errorf("summarizing logs: %w", err)
		}
		logs = summary
	}

	answer, err := h.deps.complete(ctx, llm.Request{
		SystemPrompt: logAnalystSystemPrompt,
		Prompt:       logAnswerPrompt(in, res, logs, summary != ""),
	})
	if err != nil {
		return HandlerUpdate{}, fmt.Errorf("answering from logs: %w", err)
	}
	if answer == "" {
		answer = "The model returned an empty answer. Please try rephrasing your question."
	}

	return HandlerUpdate{Reply: answer, Summary: summary}, nil
}

func needsSummary(utterance string, entries []string, joined string) bool {
	if len(entries) > summaryEntryThreshold || len(joined) > summaryCharThreshold {
		return true
	}
	u := strings.ToLower(utterance)
	return strings.Contains(u, "summar") || strings.Contains(u, "overview")
}

// fetchForHandler runs the log query for a handler. Query problems the user
// can act on come back as reply text. err is only set when the turn itself
// is over.
func fetchForHandler(ctx context.Context, deps Deps, in HandlerInput, limit int) (logquery.Result, string, error) {
	res, err := deps.fetchLogs(ctx, logquery.Request{
		Name:     in.Service.Name,
		Category: in.Service.Category,
		Limit:    limit,
		Window:   in.Window,
	})
	if ctx.Err() != nil {
		return logquery.Result{}, "", ctx.Err()
	}
	if err != nil {
		return logquery.Result{}, describeFetchError(in.Service, err), nil
	}
	if len(res.Entries) == 0 {
		return res, fmt.Sprintf("%s (%s %s, %s)", msgNoLogs, in.Service.Category, in.Service.Name, res.Window), nil
	}
	return res, "", nil
}

func describeFetchError(svc *model.ServiceIdentity, err error) string {
	var upstream *logquery.UpstreamFetchError
	switch {
	case errors.As(err, &upstream):
		return fmt.Sprintf(msgFetchFail, upstream.Err)
	case errors.Is(err, sanitize.ErrInvalidIdentifier),
		errors.Is(err, logquery.ErrInvalidTimeRange),
		errors.Is(err, logquery.ErrUnsupportedCategory):
		return fmt.Sprintf("I can't query logs for %s %q: %v", svc.Category, svc.Name, err)
	default:
		return fmt.Sprintf(msgFetchFail, err)
	}
}
