package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// AuthError carries the message shown to the caller. It matches its Kind.
type AuthError struct {
	Kind    error
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Kind
}

func unauthorized(format string, args ...any) error {
	return &AuthError{Kind: ErrUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Verifier checks a bearer token and returns the caller identity (an email).
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// AllowList is the set of caller identities accepted by the A2A endpoint.
type AllowList map[string]struct{}

func NewAllowList(callers []string) AllowList {
	l := make(AllowList, len(callers))
	for _, c := range callers {
		if c = strings.TrimSpace(c); c != "" {
			l[c] = struct{}{}
		}
	}
	return l
}

func (l AllowList) Allowed(caller string) bool {
	_, ok := l[caller]
	return ok
}

type Authenticator struct {
	verifier Verifier
	allowed  AllowList
}

func NewAuthenticator(verifier Verifier, allowed AllowList) *Authenticator {
	if len(allowed) == 0 {
		slog.Warn("no allowed callers configured, every A2A request will be rejected")
	}
	return &Authenticator{verifier: verifier, allowed: allowed}
}

// Authenticate validates an Authorization header value and returns the caller.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (string, error) {
	if header == "" {
		return "", unauthorized("Missing authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", unauthorized("Invalid authorization format. Expected 'Bearer <token>'")
	}

	caller, err := a.verifier.Verify(ctx, strings.TrimSpace(token))
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return "", err
		}
		return "", unauthorized("Token verification failed: %v", err)
	}
	if caller == "" {
		return "", unauthorized("Token missing email claim")
	}

	if !a.allowed.Allowed(caller) {
		slog.WarnContext(ctx, "caller not in allow-list", "caller", caller)
		return "", &AuthError{
			Kind:    ErrForbidden,
			Message: fmt.Sprintf("Service account %s not authorized for A2A access", caller),
		}
	}
	return caller, nil
}

// Chain tries each verifier in order and returns the first identity found.
// When all fail, the last error is returned.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (string, error) {
	err := unauthorized("Token verification failed: no verifier configured")
	for _, v := range c {
		var caller string
		if caller, err = v.Verify(ctx, token); err == nil {
			return caller, nil
		}
	}
	return "", err
}
