package issue_tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"

	"sentinel.app/relay/internal/model"
)

// maxListPages bounds issue listing at 1000 items per repository.
const maxListPages = 10

type GitHubTracker struct {
	client *github.Client
}

// NewGitHubTracker creates a tracker for github.com, or for a GitHub Enterprise
// API when baseURL is set.
func NewGitHubTracker(token, baseURL string) (*GitHubTracker, error) {
	client := github.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		base := strings.TrimSuffix(baseURL, "/") + "/"
		var err error
		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
	}
	return &GitHubTracker{client: client}, nil
}

func (g *GitHubTracker) ListIssues(ctx context.Context, target Target) ([]model.TrackedItem, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{Page: 1, PerPage: 100},
	}

	var items []model.TrackedItem
	for range maxListPages {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, target.Owner(), target.Repo(), opts)
		if err != nil {
			return nil, fmt.Errorf("fetching issues from github: %w", err)
		}

		for _, issue := range issues {
			if issue == nil || issue.IsPullRequest() {
				continue
			}
			items = append(items, githubItem(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return items, nil
}

func (g *GitHubTracker) CreateIssue(ctx context.Context, target Target, req CreateRequest) (*model.CreatedItem, error) {
	issueReq := &github.IssueRequest{
		Title: github.Ptr(req.Title),
		Body:  github.Ptr(req.Body),
	}
	if len(req.Labels) > 0 {
		issueReq.Labels = &req.Labels
	}

	issue, _, err := g.client.Issues.Create(ctx, target.Owner(), target.Repo(), issueReq)
	if err != nil {
		return nil, fmt.Errorf("creating issue on github: %w", err)
	}
	return &model.CreatedItem{
		Number: int64(issue.GetNumber()),
		URL:    issue.GetHTMLURL(),
	}, nil
}

func githubItem(issue *github.Issue) model.TrackedItem {
	item := model.TrackedItem{
		Number: int64(issue.GetNumber()),
		Title:  issue.GetTitle(),
		State:  model.ItemStateOpen,
		URL:    issue.GetHTMLURL(),
	}
	if issue.GetState() == "closed" {
		item.State = model.ItemStateClosed
	}
	for _, l := range issue.Labels {
		if name := l.GetName(); name != "" {
			item.Labels = append(item.Labels, name)
		}
	}
	return item
}
