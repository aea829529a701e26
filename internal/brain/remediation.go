package brain

import (
	"context"
	"fmt"
	"strings"

	"sentinel.app/relay/common/llm"
)

const remediationLimit = 100

type remediationHandler struct {
	deps Deps
}

func (h *remediationHandler) Edges() []Edge {
	return []Edge{EdgeDone}
}

func (h *remediationHandler) Handle(ctx context.Context, in HandlerInput) (HandlerUpdate, error) {
	if in.Service == nil {
		return HandlerUpdate{Reply: msgNoService}, nil
	}

	topic := in.Utterance
	if in.PendingIssue != nil && in.PendingIssue.Title != "" {
		topic = in.PendingIssue.Title
	}

	res, reply, err := fetchForHandler(ctx, h.deps, in, remediationLimit)
	if err != nil {
		return HandlerUpdate{}, err
	}
	if reply != "" {
		// Attempts is only set when the queries ran and matched nothing.
		if len(res.Entries) == 0 && res.Attempts > 0 {
			reply = fmt.Sprintf("No logs found for service '%s'. It's difficult to propose a solution without logs. "+
				"Consider checking if the service is running or if the logs are being exported correctly.", in.Service.Name)
		}
		return HandlerUpdate{Reply: reply}, nil
	}

	text, err := h.deps.complete(ctx, llm.Request{
		SystemPrompt: remediationSystemPrompt,
		Prompt:       remediationPrompt(in.Service, topic, strings.Join(res.Entries, "\n")),
	})
	if err != nil {
		return HandlerUpdate{}, fmt.Errorf("suggesting remediation: %w", err)
	}
	if text == "" {
		text = "The model did not return a solution. This might be due to safety settings or an empty response. Please try rephrasing your query."
	}
	return HandlerUpdate{Reply: text}, nil
}
