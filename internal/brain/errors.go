package brain

import (
	"errors"
	"fmt"

	"sentinel.app/relay/internal/model"
)

var (
	// ErrTurnTimeout is returned when a turn exceeds its deadline or its
	// context is cancelled. Nothing is checkpointed.
	ErrTurnTimeout = errors.New("turn timed out")

	// ErrMissingRepoTarget is returned by handlers that need a repository
	// when the thread has none.
	ErrMissingRepoTarget = errors.New("no repository target")

	ErrEmptyTurn = errors.New("turn text is empty")
)

// HandlerError is a failure inside a task handler. The engine turns it into
// a visible reply instead of failing the turn.
type HandlerError struct {
	Node model.Node
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Node, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
