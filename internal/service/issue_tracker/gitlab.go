package issue_tracker

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"sentinel.app/relay/internal/model"
)

type GitLabTracker struct {
	client *gitlab.Client
}

// NewGitLabTracker creates a tracker for gitlab.com, or for a self-hosted
// instance when baseURL is set.
func NewGitLabTracker(token, baseURL string) (*GitLabTracker, error) {
	client, err := newGitLabClient(baseURL, token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabTracker{client: client}, nil
}

func newGitLabClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (g *GitLabTracker) ListIssues(ctx context.Context, target Target) ([]model.TrackedItem, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 100},
	}

	var items []model.TrackedItem
	for range maxListPages {
		issues, resp, err := g.client.Issues.ListProjectIssues(target.Path, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetching issues from gitlab: %w", err)
		}

		for _, issue := range issues {
			if issue != nil {
				items = append(items, gitlabItem(issue))
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return items, nil
}

func (g *GitLabTracker) CreateIssue(ctx context.Context, target Target, req CreateRequest) (*model.CreatedItem, error) {
	opts := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(req.Title),
		Description: gitlab.Ptr(req.Body),
	}
	if len(req.Labels) > 0 {
		labels := gitlab.LabelOptions(req.Labels)
		opts.Labels = &labels
	}

	issue, _, err := g.client.Issues.CreateIssue(target.Path, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating issue on gitlab: %w", err)
	}
	return &model.CreatedItem{
		Number: int64(issue.IID),
		URL:    issue.WebURL,
	}, nil
}

// gitlabItem maps GitLab's "opened" state to open.
func gitlabItem(issue *gitlab.Issue) model.TrackedItem {
	item := model.TrackedItem{
		Number: int64(issue.IID),
		Title:  issue.Title,
		State:  model.ItemStateOpen,
		URL:    issue.WebURL,
	}
	if issue.State == "closed" {
		item.State = model.ItemStateClosed
	}
	item.Labels = append(item.Labels, issue.Labels...)
	return item
}
