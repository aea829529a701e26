package brain

import "context"

const askTargetPrompt = "Which repository should I file this in? Reply with a GitHub or GitLab URL, " +
	"for example https://github.com/owner/repo."

type askTargetHandler struct{}

func (askTargetHandler) Edges() []Edge {
	return []Edge{EdgeDone}
}

func (askTargetHandler) Handle(context.Context, HandlerInput) (HandlerUpdate, error) {
	return HandlerUpdate{Reply: askTargetPrompt}, nil
}
