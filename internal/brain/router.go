package brain

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"sentinel.app/relay/common/llm"
	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/logquery"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/service/issue_tracker"
)

// Route is the router's decision, and the label of its outgoing edge.
type Route string

const (
	RouteLogAnswer     Route = "log-answer"
	RouteIssueCreation Route = "issue-creation"
	RouteRemediation   Route = "remediation"
	RouteNeedsTarget   Route = "needs-target"
)

// Routes lists every route the router can emit.
var Routes = []Route{RouteLogAnswer, RouteIssueCreation, RouteRemediation, RouteNeedsTarget}

// routeAliases maps handler names the classifier may answer with, including
// legacy agent names such as "log_explorer", to routes.
var routeAliases = map[string]Route{
	"log-answer":           RouteLogAnswer,
	"log_answer":           RouteLogAnswer,
	"log_explorer":         RouteLogAnswer,
	"log-explorer":         RouteLogAnswer,
	"issue-creation":       RouteIssueCreation,
	"issue_creation":       RouteIssueCreation,
	"issue-detection":      RouteIssueCreation,
	"github_issue_manager": RouteIssueCreation,
	"filing":               RouteIssueCreation,
	"remediation":          RouteRemediation,
	"solutions_agent":      RouteRemediation,
	"solutions-agent":      RouteRemediation,
	"needs-target":         RouteNeedsTarget,
	"ask-for-target":       RouteNeedsTarget,
}

type RouteInput struct {
	Utterance    string
	History      []model.Exchange
	KnownRepo    string
	KnownService *model.ServiceIdentity
}

// Decision is the router output. Service, RepoTarget and Window are set only
// when this turn's utterance or the classifier supplied new values.
type Decision struct {
	Route    Route
	Raw      string // handler name as the classifier wrote it
	Degraded bool   // parse fallback or default route was used
	Reason   string

	Service    *model.ServiceIdentity
	RepoTarget string
	Window     *logquery.Window
	IssueText  string
}

type routerReply struct {
	Next       string `json:"next"`
	NextAgent  string `json:"next_agent"`
	RepoTarget string `json:"repo_target"`
	IssueText  string `json:"issue_text"`
}

type Router struct {
	deps Deps
	now  func() time.Time
}

func NewRouter(deps Deps, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{deps: deps, now: now}
}

// Route classifies the utterance. It never fails: completion and parse
// problems fall back to log-answer with Degraded set.
func (r *Router) Route(ctx context.Context, in RouteInput) Decision {
	ex := Extract(in.Utterance, r.now())
	d := Decision{
		Service:    ex.Service,
		RepoTarget: ex.RepoURL,
		Window:     ex.Window,
	}

	text, err := r.deps.complete(ctx, llm.Request{
		SystemPrompt: routerSystemPrompt,
		Prompt:       routerPrompt(in, ex),
		Temperature:  llm.Temp(0),
		MaxTokens:    512,
	})
	if err != nil {
		slog.WarnContext(ctx, "router completion failed, using default route", "error", err)
		d.Route, d.Degraded, d.Reason = RouteLogAnswer, true, "completion failed"
		return d
	}

	reply, degraded := parseRouterReply(text)
	if degraded {
		slog.WarnContext(ctx, "router parse degraded",
			"event", "RouterParseDegraded",
			"raw", logger.Truncate(text, 200))
	}
	d.Degraded = degraded
	d.Raw = reply.name()
	if degraded {
		d.Reason = "unparseable classifier output"
	}

	route, ok := routeAliases[normalizeName(d.Raw)]
	if !ok {
		slog.WarnContext(ctx, "router returned unknown handler, using default route", "handler", d.Raw)
		d.Route, d.Degraded, d.Reason = RouteLogAnswer, true, "unknown handler"
		return d
	}
	d.Route = route

	if route == RouteIssueCreation || route == RouteNeedsTarget {
		d.IssueText = strings.TrimSpace(reply.IssueText)
		if d.RepoTarget == "" && looksLikeRepo(reply.RepoTarget) {
			d.RepoTarget = strings.TrimSpace(reply.RepoTarget)
		}
		if d.RepoTarget == "" && in.KnownRepo == "" {
			d.Route = RouteNeedsTarget
		}
		if d.Route == RouteNeedsTarget && (d.RepoTarget != "" || in.KnownRepo != "") {
			d.Route = RouteIssueCreation
		}
	}
	return d
}

func (r routerReply) name() string {
	if r.Next != "" {
		return r.Next
	}
	return r.NextAgent
}

// parseRouterReply strips code fences, decodes the JSON object and repairs
// it when it is almost valid. Anything else is taken as a bare handler name.
func parseRouterReply(text string) (routerReply, bool) {
	body := llm.StripCodeFence(text)

	var reply routerReply
	if err := json.Unmarshal([]byte(body), &reply); err == nil && reply.name() != "" {
		return reply, false
	}

	if strings.HasPrefix(body, "{") {
		if repaired, err := jsonrepair.JSONRepair(body); err == nil {
			reply = routerReply{}
			if err := json.Unmarshal([]byte(repaired), &reply); err == nil && reply.name() != "" {
				return reply, false
			}
		}
	}

	return routerReply{Next: body}, true
}

func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Trim(n, "\"'`.*: ")
	return n
}

func looksLikeRepo(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	_, err := issue_tracker.ParseTarget(s, issue_tracker.ProviderGitHub)
	return err == nil
}
