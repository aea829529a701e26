package worker

import (
	"context"

	"sentinel.app/relay/internal/model"
	"sentinel.app/relay/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Archiver persists one committed exchange.
type Archiver interface {
	Archive(ctx context.Context, event model.TranscriptEvent) error
}
