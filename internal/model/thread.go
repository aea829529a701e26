package model

import (
	"slices"
	"time"
)

// Category is a monitored-service kind. Each category has its own log filter table.
type Category string

const (
	CategoryCloudRun       Category = "cloud_run"
	CategoryCloudBuild     Category = "cloud_build"
	CategoryCloudFunctions Category = "cloud_functions"
	CategoryGCE            Category = "gce"
	CategoryGKE            Category = "gke"
	CategoryAppEngine      Category = "app_engine"
)

// ServiceIdentity names the monitored resource in scope for a thread.
type ServiceIdentity struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// Node is a vertex of the workflow graph.
type Node string

const (
	NodeRouter         Node = "router"
	NodeLogAnswer      Node = "log-answer"
	NodeIssueDetection Node = "issue-detection"
	NodeFiling         Node = "filing"
	NodeRemediation    Node = "remediation"
	NodeAskTarget      Node = "ask-for-target"
	NodeEnd            Node = "end"
)

// HandlerOutputs is the per-category audit trail of a thread. Every list is append-only.
type HandlerOutputs struct {
	Routes        []string `json:"routes,omitempty"`
	LogAnswers    []string `json:"log_answers,omitempty"`
	LogSummaries  []string `json:"log_summaries,omitempty"`
	Detections    []string `json:"detections,omitempty"`
	Filings       []string `json:"filings,omitempty"`
	Remediations  []string `json:"remediations,omitempty"`
	TargetPrompts []string `json:"target_prompts,omitempty"`
}

// Append records text under the category owned by node.
func (o *HandlerOutputs) Append(node Node, text string) {
	if text == "" {
		return
	}
	switch node {
	case NodeRouter:
		o.Routes = append(o.Routes, text)
	case NodeLogAnswer:
		o.LogAnswers = append(o.LogAnswers, text)
	case NodeIssueDetection:
		o.Detections = append(o.Detections, text)
	case NodeFiling:
		o.Filings = append(o.Filings, text)
	case NodeRemediation:
		o.Remediations = append(o.Remediations, text)
	case NodeAskTarget:
		o.TargetPrompts = append(o.TargetPrompts, text)
	}
}

func (o HandlerOutputs) clone() HandlerOutputs {
	return HandlerOutputs{
		Routes:        slices.Clone(o.Routes),
		LogAnswers:    slices.Clone(o.LogAnswers),
		LogSummaries:  slices.Clone(o.LogSummaries),
		Detections:    slices.Clone(o.Detections),
		Filings:       slices.Clone(o.Filings),
		Remediations:  slices.Clone(o.Remediations),
		TargetPrompts: slices.Clone(o.TargetPrompts),
	}
}

// TurnSummary describes the most recent committed turn of a thread.
type TurnSummary struct {
	Route            Node          `json:"route"`
	Path             []Node        `json:"path"`
	Degraded         bool          `json:"degraded,omitempty"`
	IssuesIdentified int           `json:"issues_identified"`
	Filed            []CreatedItem `json:"filed,omitempty"`
	Skipped          []string      `json:"skipped,omitempty"`
}

// ThreadState is the persisted memory of one conversation.
type ThreadState struct {
	ThreadID     string           `json:"thread_id"`
	Messages     []Message        `json:"messages"`
	Service      *ServiceIdentity `json:"service_identity,omitempty"`
	RepoTarget   string           `json:"repo_target,omitempty"`
	PendingIssue *DraftIssue      `json:"pending_issue,omitempty"`
	Issues       []Issue          `json:"issues,omitempty"`
	LastRoute    Node             `json:"last_route,omitempty"`
	Outputs      HandlerOutputs   `json:"handler_outputs"`
	LastTurn     *TurnSummary     `json:"last_turn,omitempty"`

	// Version is bumped on every committed turn; stores reject stale writes.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewThreadState(threadID string, now time.Time) *ThreadState {
	return &ThreadState{
		ThreadID:  threadID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a turn can mutate state without touching the checkpoint.
func (s *ThreadState) Clone() *ThreadState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = slices.Clone(s.Messages)
	if s.Service != nil {
		svc := *s.Service
		c.Service = &svc
	}
	if s.PendingIssue != nil {
		draft := *s.PendingIssue
		c.PendingIssue = &draft
	}
	if s.Issues != nil {
		c.Issues = make([]Issue, len(s.Issues))
		for i, issue := range s.Issues {
			issue.Evidence = slices.Clone(issue.Evidence)
			c.Issues[i] = issue
		}
	}
	c.Outputs = s.Outputs.clone()
	if s.LastTurn != nil {
		turn := *s.LastTurn
		turn.Path = slices.Clone(s.LastTurn.Path)
		turn.Filed = slices.Clone(s.LastTurn.Filed)
		turn.Skipped = slices.Clone(s.LastTurn.Skipped)
		c.LastTurn = &turn
	}
	return &c
}

func (s *ThreadState) AppendMessage(role Role, text string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Text: text, At: at})
}

// LastReply returns the text of the most recent assistant message.
func (s *ThreadState) LastReply() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Text
		}
	}
	return ""
}
