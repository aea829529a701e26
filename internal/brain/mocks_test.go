package brain_test

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/service/issue_tracker"
)

// mockLLM implements llm.Client. respondFn sees every request, routerFn only
// router requests when set.
type mockLLM struct {
	mu        sync.Mutex
	requests  []llm.Request
	routerFn  func(ctx context.Context, req llm.Request) (string, error)
	respondFn func(ctx context.Context, req llm.Request) (string, error)
}

func (m *mockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	fn := m.respondFn
	if isRouterRequest(req) && m.routerFn != nil {
		fn = m.routerFn
	}
	if fn == nil {
		return &llm.Response{Text: ""}, nil
	}
	text, err := fn(ctx, req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text}, nil
}

func (m *mockLLM) Model() string {
	return "mock"
}

func (m *mockLLM) requestsMatching(fragment string) []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []llm.Request
	for _, r := range m.requests {
		if strings.Contains(r.Prompt, fragment) {
			out = append(out, r)
		}
	}
	return out
}

func routeTo(reply string) func(context.Context, llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) {
		return reply, nil
	}
}

func isRouterRequest(req llm.Request) bool {
	return strings.Contains(req.SystemPrompt, "supervisor agent")
}

// mockSource implements logquery.Source.
type mockSource struct {
	mu      sync.Mutex
	filters []string
	listFn  func(ctx context.Context, filter string, limit int) ([]string, error)
}

func (m *mockSource) ListEntries(ctx context.Context, filter string, limit int) ([]string, error) {
	m.mu.Lock()
	m.filters = append(m.filters, filter)
	m.mu.Unlock()
	if m.listFn != nil {
		return m.listFn(ctx, filter, limit)
	}
	return nil, nil
}

func (m *mockSource) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.filters...)
}

// mockIssueHost implements brain.IssueHost.
type mockIssueHost struct {
	mu       sync.Mutex
	items    []model.TrackedItem
	listErr  error
	created  []issue_tracker.CreateRequest
	repos    []string
	createFn func(req issue_tracker.CreateRequest) (*model.CreatedItem, error)
}

func (m *mockIssueHost) ListIssues(_ context.Context, repo string) ([]model.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos = append(m.repos, repo)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.TrackedItem(nil), m.items...), nil
}

func (m *mockIssueHost) CreateIssue(_ context.Context, repo string, req issue_tracker.CreateRequest) (*model.CreatedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos = append(m.repos, repo)
	m.created = append(m.created, req)
	if m.createFn != nil {
		return m.createFn(req)
	}
	n := int64(100 + len(m.created))
	return &model.CreatedItem{Number: n, URL: "https://github.com/acme/api/issues/" + strconv.FormatInt(n, 10)}, nil
}

// mockSink implements brain.TranscriptSink.
type mockSink struct {
	mu     sync.Mutex
	events []model.TranscriptEvent
}

func (m *mockSink) PublishTranscript(_ context.Context, e model.TranscriptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int64
}

func (s *sequentialIDs) NewString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "thread-" + strconv.FormatInt(s.n, 10)
}
