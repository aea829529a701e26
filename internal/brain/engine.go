package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/store"
)

// maxSteps bounds the number of handler nodes one turn may visit.
const maxSteps = 8

type EngineConfig struct {
	TurnTimeout time.Duration
	// DefaultRepo is used when a thread has no repository target yet.
	DefaultRepo string
	Now         func() time.Time
}

// IDGenerator makes thread ids. Implemented by *id.Generator.
type IDGenerator interface {
	NewString() string
}

// TranscriptSink receives committed exchanges. Implemented by *queue.RedisProducer.
type TranscriptSink interface {
	PublishTranscript(ctx context.Context, event model.TranscriptEvent) error
}

type TurnInput struct {
	Text     string
	ThreadID string // empty starts a new thread

	// Explicit parameters take precedence over anything extracted from Text.
	Service    *model.ServiceIdentity
	RepoTarget string
	Window     *logquery.Window
}

type Engine struct {
	cfg         EngineConfig
	router      *Router
	graph       *Graph
	checkpoints store.CheckpointStore
	ids         IDGenerator
	transcripts TranscriptSink
	locks       *threadLocks
}

// NewEngine creates an engine. transcripts may be nil.
func NewEngine(
	cfg EngineConfig,
	router *Router,
	graph *Graph,
	checkpoints store.CheckpointStore,
	ids IDGenerator,
	transcripts TranscriptSink,
) *Engine {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		cfg:         cfg,
		router:      router,
		graph:       graph,
		checkpoints: checkpoints,
		ids:         ids,
		transcripts: transcripts,
		locks:       newThreadLocks(),
	}
}

// SubmitTurn runs one conversation turn and returns the committed thread state.
// The stored checkpoint is written once, after the last handler. On timeout
// or cancellation it returns ErrTurnTimeout and the checkpoint is unchanged.
func (e *Engine) SubmitTurn(ctx context.Context, in TurnInput) (*model.ThreadState, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyTurn
	}

	threadID := in.ThreadID
	if threadID == "" {
		threadID = e.ids.NewString()
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ThreadID:  &threadID,
		Component: "relay.brain.engine",
	})
	sc := logger.StartSpan(ctx, "brain.turn")
	defer sc.End()
	ctx = sc.Context()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()

	unlock, err := e.locks.Lock(ctx, threadID)
	if err != nil {
		return nil, e.timeoutError(ctx, "waiting for thread lock")
	}
	defer unlock()

	current, err := e.checkpoints.Load(ctx, threadID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		current = model.NewThreadState(threadID, e.cfg.Now())
	case err != nil:
		if ctx.Err() != nil {
			return nil, e.timeoutError(ctx, "loading checkpoint")
		}
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	expected := current.Version

	work := current.Clone()
	state, err := e.runTurn(ctx, work, in, text)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	state.Version = expected + 1
	state.UpdatedAt = e.cfg.Now()
	if err := e.checkpoints.Save(ctx, state, expected); err != nil {
		if ctx.Err() != nil {
			return nil, e.timeoutError(ctx, "saving checkpoint")
		}
		sc.RecordError(err)
		return nil, fmt.Errorf("committing thread %s: %w", threadID, err)
	}

	slog.InfoContext(ctx, "turn completed",
		"route", state.LastRoute,
		"version", state.Version,
		"messages", len(state.Messages))

	e.publish(ctx, state, text, sc.TraceID())
	return state, nil
}

func (e *Engine) runTurn(ctx context.Context, work *model.ThreadState, in TurnInput, text string) (*model.ThreadState, error) {
	now := e.cfg.Now()
	history := model.Exchanges(work.Messages)
	work.AppendMessage(model.RoleUser, text, now)

	if work.RepoTarget == "" && e.cfg.DefaultRepo != "" {
		work.RepoTarget = e.cfg.DefaultRepo
	}

	decision := e.router.Route(ctx, RouteInput{
		Utterance:    text,
		History:      history,
		KnownRepo:    firstNonEmpty(in.RepoTarget, work.RepoTarget),
		KnownService: firstService(in.Service, work.Service),
	})
	if ctx.Err() != nil {
		return nil, e.timeoutError(ctx, "routing")
	}

	window := in.Window
	if window == nil {
		window = decision.Window
	}
	applyDecision(work, in, decision)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Route: logger.Ptr(string(decision.Route))})
	slog.InfoContext(ctx, "turn routed",
		"degraded", decision.Degraded,
		"raw", decision.Raw,
		"has_service", work.Service != nil,
		"has_repo", work.RepoTarget != "")

	node, err := e.graph.Next(model.NodeRouter, Edge(decision.Route))
	if err != nil {
		return nil, err
	}
	work.LastRoute = node
	work.Outputs.Append(model.NodeRouter, fmt.Sprintf("Routing to %s", node))

	summary := &model.TurnSummary{Route: node, Degraded: decision.Degraded}
	var replies []string

	for step := 0; node != model.NodeEnd; step++ {
		if step == maxSteps {
			return nil, fmt.Errorf("turn exceeded %d steps at %s", maxSteps, node)
		}
		summary.Path = append(summary.Path, node)

		update, err := e.runHandler(ctx, node, handlerInput(work, text, history, window))
		if ctx.Err() != nil {
			return nil, e.timeoutError(ctx, string(node))
		}
		if err != nil {
			slog.ErrorContext(ctx, "handler failed", "node", node, "error", err)
			recordAs, reply := failureReply(node, err)
			work.Outputs.Append(recordAs, reply)
			replies = append(replies, reply)
			break
		}

		mergeUpdate(work, node, update, summary)
		if update.Reply != "" {
			replies = append(replies, update.Reply)
		}

		edge := update.Edge
		if edge == "" {
			edge = EdgeDone
		}
		if node, err = e.graph.Next(node, edge); err != nil {
			return nil, err
		}
	}

	reply := strings.Join(replies, "\n\n")
	if reply == "" {
		reply = "Done."
	}
	work.AppendMessage(model.RoleAssistant, reply, e.cfg.Now())
	work.LastTurn = summary
	return work, nil
}

// runHandler calls the handler and converts panics into a HandlerError.
func (e *Engine) runHandler(ctx context.Context, node model.Node, in HandlerInput) (update HandlerUpdate, err error) {
	h, ok := e.graph.Handler(node)
	if !ok {
		return HandlerUpdate{}, &HandlerError{Node: node, Err: errors.New("no handler registered")}
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Node: logger.Ptr(string(node))})
	sc := logger.StartSpan(ctx, "brain.handler."+string(node))
	defer sc.End()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "handler panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			err = &HandlerError{Node: node, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := time.Now()
	update, err = h.Handle(sc.Context(), in)
	if err != nil {
		sc.RecordError(err)
		return HandlerUpdate{}, &HandlerError{Node: node, Err: err}
	}

	slog.DebugContext(ctx, "handler finished",
		"edge", update.Edge,
		"duration_ms", time.Since(start).Milliseconds())
	return update, nil
}

func (e *Engine) timeoutError(ctx context.Context, stage string) error {
	slog.WarnContext(ctx, "turn abandoned, nothing committed",
		"stage", stage,
		"cause", context.Cause(ctx))
	return fmt.Errorf("%w during %s: %w", ErrTurnTimeout, stage, ctx.Err())
}

// publish sends the committed exchange to the transcript sink. Failures are
// logged and do not affect the turn.
func (e *Engine) publish(ctx context.Context, state *model.ThreadState, text, traceID string) {
	if e.transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := e.transcripts.PublishTranscript(ctx, model.TranscriptEvent{
		ThreadID:  state.ThreadID,
		User:      text,
		Assistant: state.LastReply(),
		Route:     state.LastRoute,
		At:        state.UpdatedAt,
		TraceID:   traceID,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to publish transcript", "error", err)
	}
}

func applyDecision(work *model.ThreadState, in TurnInput, d Decision) {
	switch {
	case in.Service != nil:
		svc := *in.Service
		work.Service = &svc
	case d.Service != nil:
		work.Service = d.Service
	}

	switch {
	case in.RepoTarget != "":
		work.RepoTarget = in.RepoTarget
	case d.RepoTarget != "":
		work.RepoTarget = d.RepoTarget
	}

	if d.IssueText != "" {
		work.PendingIssue = draftFrom(d.IssueText)
	}
}

func draftFrom(text string) *model.DraftIssue {
	title, body, _ := strings.Cut(strings.TrimSpace(text), "\n")
	body = strings.TrimSpace(body)
	if body == "" {
		body = title
	}
	return &model.DraftIssue{Title: strings.TrimSpace(title), Body: body}
}

func handlerInput(work *model.ThreadState, text string, history []model.Exchange, window *logquery.Window) HandlerInput {
	in := HandlerInput{
		ThreadID:   work.ThreadID,
		Utterance:  text,
		History:    history,
		RepoTarget: work.RepoTarget,
		Window:     window,
	}
	if work.Service != nil {
		svc := *work.Service
		in.Service = &svc
	}
	if work.PendingIssue != nil {
		draft := *work.PendingIssue
		in.PendingIssue = &draft
	}
	if len(work.Issues) > 0 {
		in.Issues = make([]model.Issue, len(work.Issues))
		copy(in.Issues, work.Issues)
	}
	return in
}

func mergeUpdate(work *model.ThreadState, node model.Node, u HandlerUpdate, summary *model.TurnSummary) {
	output := u.Output
	if output == "" {
		output = u.Reply
	}
	work.Outputs.Append(node, output)
	if u.Summary != "" {
		work.Outputs.LogSummaries = append(work.Outputs.LogSummaries, u.Summary)
	}

	if u.SetIssues {
		work.Issues = u.Issues
		if node == model.NodeIssueDetection {
			summary.IssuesIdentified = len(u.Issues)
		}
	}
	if u.ClearPending {
		work.PendingIssue = nil
	}
	summary.Filed = append(summary.Filed, u.Filed...)
	summary.Skipped = append(summary.Skipped, u.Skipped...)
}

// failureReply returns the reply for a failed handler and the node whose
// audit list records it. A missing repository target is answered as ask-for-target.
func failureReply(node model.Node, err error) (model.Node, string) {
	switch {
	case errors.Is(err, ErrMissingRepoTarget):
		return model.NodeAskTarget, askTargetPrompt
	default:
		return node, fmt.Sprintf("Sorry, something went wrong in the %s step: %v", node, errors.Unwrap(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstService(services ...*model.ServiceIdentity) *model.ServiceIdentity {
	for _, s := range services {
		if s != nil {
			return s
		}
	}
	return nil
}
