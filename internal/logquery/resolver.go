package logquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/sanitize"
)

// DefaultLimit is used when a request does not set Limit.
const DefaultLimit = 1000

// ErrUnrecoverable marks source errors after which no further filter is tried
// (bad credentials, missing permission, rejected filter syntax).
var ErrUnrecoverable = errors.New("unrecoverable log source error")

// Unrecoverable wraps err so the resolver stops at it.
func Unrecoverable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}

func isUnrecoverable(err error) bool {
	return errors.Is(err, ErrUnrecoverable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// UpstreamFetchError is a transport or query failure, as opposed to an empty result.
type UpstreamFetchError struct {
	Filter string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetching logs: %v", e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// Source lists raw log entries for a filter, newest first, each rendered as one line.
type Source interface {
	ListEntries(ctx context.Context, filter string, limit int) ([]string, error)
}

type Config struct {
	ProjectID         string
	Table             Table
	DefaultLookback   time.Duration
	EscalatedLookback time.Duration
	Now               func() time.Time
}

// Resolver turns a service identity into ordered log queries and runs them.
type Resolver struct {
	source            Source
	projectID         string
	table             Table
	defaultLookback   time.Duration
	escalatedLookback time.Duration
	now               func() time.Time
}

func NewResolver(source Source, cfg Config) *Resolver {
	r := &Resolver{
		source:            source,
		projectID:         cfg.ProjectID,
		table:             cfg.Table,
		defaultLookback:   cfg.DefaultLookback,
		escalatedLookback: cfg.EscalatedLookback,
		now:               cfg.Now,
	}
	if r.table == nil {
		r.table = DefaultTable()
	}
	if r.defaultLookback <= 0 {
		r.defaultLookback = DefaultLookback
	}
	if r.escalatedLookback <= 0 {
		r.escalatedLookback = EscalatedLookback
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

type Request struct {
	Name     string
	Category model.Category
	Limit    int
	// Window is an explicit range. Nil means the default lookback, with escalation.
	Window *Window
}

// QueryPlan is the resolved, fully substituted query set for one window.
type QueryPlan struct {
	Category     model.Category
	ResourceType string
	Filters      []string
	Window       Window
	Escalate     bool

	name     string
	project  string
	template Template
}

type Result struct {
	Entries   []string
	Filter    string // filter that produced Entries, empty when nothing matched
	Window    Window // last window queried
	Escalated bool
	Attempts  int
}

// Plan validates the request and builds the first query set without running it.
func (r *Resolver) Plan(req Request) (QueryPlan, error) {
	name, err := sanitize.Identifier(req.Name, "service_name")
	if err != nil {
		return QueryPlan{}, err
	}
	project, err := sanitize.Identifier(r.projectID, "project_id")
	if err != nil {
		return QueryPlan{}, err
	}

	tmpl, err := r.table.Lookup(req.Category)
	if err != nil {
		return QueryPlan{}, err
	}

	plan := QueryPlan{
		Category:     req.Category,
		ResourceType: tmpl.ResourceType,
		name:         name,
		project:      project,
		template:     tmpl,
	}

	if req.Window != nil {
		if err := req.Window.Validate(); err != nil {
			return QueryPlan{}, err
		}
		plan.Window = *req.Window
	} else {
		plan.Window = Last(r.defaultLookback, r.now())
		plan.Escalate = tmpl.Escalate
	}

	plan.Filters = tmpl.Filters(name, project, plan.Window)
	return plan, nil
}

// Fetch runs the plan for req. An empty result with a nil error means the
// queries succeeded and matched nothing.
func (r *Resolver) Fetch(ctx context.Context, req Request) (Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.logquery.resolver"})

	plan, err := r.Plan(req)
	if err != nil {
		return Result{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	res := Result{Window: plan.Window}
	found, stop, fetchErr := r.run(ctx, plan.Filters, limit, &res)
	if found {
		return res, nil
	}

	if !stop && plan.Escalate {
		wide := Last(r.escalatedLookback, plan.Window.End)
		filters := plan.template.Filters(plan.name, plan.project, wide)

		slog.InfoContext(ctx, "no logs in default window, escalating",
			"service_name", plan.name,
			"category", plan.Category,
			"window", wide.String())

		res.Window = wide
		res.Escalated = true
		var wideErr error
		found, _, wideErr = r.run(ctx, filters, limit, &res)
		if found {
			return res, nil
		}
		if wideErr != nil {
			fetchErr = wideErr
		}
	}

	if fetchErr != nil {
		return Result{Window: res.Window, Escalated: res.Escalated, Attempts: res.Attempts}, fetchErr
	}

	slog.InfoContext(ctx, "no logs found",
		"service_name", plan.name,
		"category", plan.Category,
		"attempts", res.Attempts,
		"escalated", res.Escalated)
	return res, nil
}

// run tries filters in order. It reports whether entries were found, whether
// the caller must stop trying, and the last transport error seen.
func (r *Resolver) run(ctx context.Context, filters []string, limit int, res *Result) (found, stop bool, err error) {
	var lastErr error
	for i, filter := range filters {
		res.Attempts++
		entries, listErr := r.source.ListEntries(ctx, filter, limit)
		if listErr != nil {
			lastErr = &UpstreamFetchError{Filter: filter, Err: listErr}
			if isUnrecoverable(listErr) {
				slog.ErrorContext(ctx, "log query failed, not trying remaining filters",
					"error", listErr,
					"filter_index", i)
				return false, true, lastErr
			}
			slog.WarnContext(ctx, "log query failed, trying next filter",
				"error", listErr,
				"filter_index", i)
			continue
		}

		slog.DebugContext(ctx, "log query attempt",
			"filter_index", i,
			"entries", len(entries))

		if len(entries) > 0 {
			res.Entries = entries
			res.Filter = filter
			return true, false, nil
		}
	}
	return false, false, lastErr
}
