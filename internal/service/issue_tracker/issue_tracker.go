// Package issue_tracker lists and files issues on GitHub and GitLab repositories.
package issue_tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"sentinel.app/relay/internal/model"
)

type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

var (
	ErrInvalidTarget       = errors.New("invalid repository target")
	ErrProviderUnavailable = errors.New("issue tracker not configured")
)

// Target identifies one repository on a tracker host.
type Target struct {
	Provider Provider
	Host     string // empty for the provider's public host
	Path     string // "owner/repo", GitLab allows nested groups
}

// Owner and Repo split Path at its last slash.
func (t Target) Owner() string {
	owner, _ := t.split()
	return owner
}

func (t Target) Repo() string {
	_, repo := t.split()
	return repo
}

func (t Target) split() (string, string) {
	i := strings.LastIndexByte(t.Path, '/')
	if i < 0 {
		return "", t.Path
	}
	return t.Path[:i], t.Path[i+1:]
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Provider, t.Path)
}

type CreateRequest struct {
	Title  string
	Body   string
	Labels []string
}

// Tracker is one issue host.
type Tracker interface {
	ListIssues(ctx context.Context, target Target) ([]model.TrackedItem, error)
	CreateIssue(ctx context.Context, target Target, req CreateRequest) (*model.CreatedItem, error)
}

// ParseTarget accepts repository URLs (https or scp-style git remotes) and
// bare "owner/repo" paths. Bare paths use defaultProvider.
func ParseTarget(raw string, defaultProvider Provider) (Target, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}

	if rest, ok := strings.CutPrefix(s, "git@"); ok {
		host, path, found := strings.Cut(rest, ":")
		if !found {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
		}
		return targetFor(host, path, defaultProvider, raw)
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
		}
		return targetFor(u.Host, u.Path, defaultProvider, raw)
	}

	if host, path, ok := strings.Cut(s, "/"); ok && strings.Contains(host, ".") {
		return targetFor(host, path, defaultProvider, raw)
	}

	path, err := cleanPath(s, false)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return Target{Provider: defaultProvider, Path: path}, nil
}

func targetFor(host, path string, defaultProvider Provider, raw string) (Target, error) {
	host = strings.ToLower(host)
	t := Target{Provider: defaultProvider}
	switch {
	case host == "github.com" || host == "www.github.com":
		t.Provider = ProviderGitHub
	case host == "gitlab.com" || host == "www.gitlab.com":
		t.Provider = ProviderGitLab
	case strings.Contains(host, "gitlab"):
		t.Provider, t.Host = ProviderGitLab, host
	case strings.Contains(host, "github"):
		t.Provider, t.Host = ProviderGitHub, host
	default:
		t.Host = host
	}

	cleaned, err := cleanPath(path, t.Provider == ProviderGitHub)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	t.Path = cleaned
	return t, nil
}

// cleanPath trims ".git" and GitLab "/-/" UI suffixes. GitHub paths are cut
// to owner/repo.
func cleanPath(path string, twoSegments bool) (string, error) {
	path = strings.Trim(path, "/")
	if i := strings.Index(path, "/-/"); i >= 0 {
		path = path[:i]
	}
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	if twoSegments && len(parts) > 2 {
		parts = parts[:2]
	}
	if len(parts) < 2 {
		return "", ErrInvalidTarget
	}
	last := len(parts) - 1
	parts[last] = strings.TrimSuffix(parts[last], ".git")
	if parts[last] == "" {
		return "", ErrInvalidTarget
	}
	return strings.Join(parts, "/"), nil
}
