package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/service/issue_tracker"
)

// LogFetcher resolves and runs log queries. Implemented by *logquery.Resolver.
type LogFetcher interface {
	Fetch(ctx context.Context, req logquery.Request) (logquery.Result, error)
}

// IssueHost lists and files issues for a repository reference.
// Implemented by *issue_tracker.Registry.
type IssueHost interface {
	ListIssues(ctx context.Context, repo string) ([]model.TrackedItem, error)
	CreateIssue(ctx context.Context, repo string, req issue_tracker.CreateRequest) (*model.CreatedItem, error)
}

// Deps are the collaborators shared by the router and the task handlers.
type Deps struct {
	LLM    llm.Client
	Logs   LogFetcher
	Issues IssueHost

	// CallTimeout bounds every single collaborator call.
	CallTimeout time.Duration
}

// HandlerInput is the read-only view of a thread a handler works from.
type HandlerInput struct {
	ThreadID     string
	Utterance    string
	History      []model.Exchange
	Service      *model.ServiceIdentity
	RepoTarget   string
	PendingIssue *model.DraftIssue
	Issues       []model.Issue
	Window       *logquery.Window
}

// HandlerUpdate is the partial state change a handler returns.
// It has no way to clear the thread's service identity or repository target.
type HandlerUpdate struct {
	// Reply is shown to the user. Output, when set, is recorded in the
	// handler's audit list instead of Reply.
	Reply  string
	Output string

	// Summary is recorded in LogSummaries.
	Summary string

	// Issues replaces the thread's detected issues when SetIssues is true.
	Issues    []model.Issue
	SetIssues bool

	ClearPending bool

	Filed   []model.CreatedItem
	Skipped []string

	// Edge selects the outgoing transition. Empty means EdgeDone.
	Edge Edge
}

// Handler is one task node of the workflow graph.
type Handler interface {
	// Edges lists every outgoing edge the handler can emit.
	Edges() []Edge
	Handle(ctx context.Context, in HandlerInput) (HandlerUpdate, error)
}

func (d Deps) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.CallTimeout)
}

func (d Deps) complete(ctx context.Context, req llm.Request) (string, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	resp, err := d.LLM.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (d Deps) fetchLogs(ctx context.Context, req logquery.Request) (logquery.Result, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.Logs.Fetch(ctx, req)
}

func (d Deps) listIssues(ctx context.Context, repo string) ([]model.TrackedItem, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	items, err := d.Issues.ListIssues(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("listing issues for %s: %w", repo, err)
	}
	return items, nil
}

func (d Deps) createIssue(ctx context.Context, repo string, req issue_tracker.CreateRequest) (*model.CreatedItem, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	item, err := d.Issues.CreateIssue(ctx, repo, req)
	if err != nil {
		return nil, fmt.Errorf("creating issue in %s: %w", repo, err)
	}
	return item, nil
}
