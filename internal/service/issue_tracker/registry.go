package issue_tracker

import (
	"context"
	"fmt"

	"sentinel.app/relay/internal/model"
)

// Registry dispatches repository targets to the tracker of their provider.
type Registry struct {
	trackers        map[Provider]Tracker
	defaultProvider Provider
}

func NewRegistry(defaultProvider Provider) *Registry {
	if defaultProvider == "" {
		defaultProvider = ProviderGitHub
	}
	return &Registry{
		trackers:        make(map[Provider]Tracker),
		defaultProvider: defaultProvider,
	}
}

func (r *Registry) Register(p Provider, t Tracker) {
	r.trackers[p] = t
}

// Resolve parses repo and returns the tracker that serves it.
func (r *Registry) Resolve(repo string) (Tracker, Target, error) {
	target, err := ParseTarget(repo, r.defaultProvider)
	if err != nil {
		return nil, Target{}, err
	}
	t, ok := r.trackers[target.Provider]
	if !ok {
		return nil, Target{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, target.Provider)
	}
	return t, target, nil
}

func (r *Registry) ListIssues(ctx context.Context, repo string) ([]model.TrackedItem, error) {
	t, target, err := r.Resolve(repo)
	if err != nil {
		return nil, err
	}
	return t.ListIssues(ctx, target)
}

func (r *Registry) CreateIssue(ctx context.Context, repo string, req CreateRequest) (*model.CreatedItem, error) {
	t, target, err := r.Resolve(repo)
	if err != nil {
		return nil, err
	}
	return t.CreateIssue(ctx, target, req)
}
