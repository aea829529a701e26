package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel.app/relay/internal/model"
)

// Producer publishes committed exchanges to the transcript stream.
// *RedisProducer implements brain.TranscriptSink.
type Producer interface {
	PublishTranscript(ctx context.Context, event model.TranscriptEvent) error
	Close() error
}

type RedisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) *RedisProducer {
	return &RedisProducer{
		client: client,
		stream: stream,
	}
}

func (p *RedisProducer) PublishTranscript(ctx context.Context, event model.TranscriptEvent) error {
	fields := eventValues(event, 1)

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Result()
	if err != nil {
		return fmt.Errorf("publishing transcript: %w", err)
	}

	slog.DebugContext(ctx, "transcript published", "stream", p.stream, "message_id", id)
	return nil
}

func (p *RedisProducer) Close() error {
	return p.client.Close()
}

func eventValues(event model.TranscriptEvent, attempt int) map[string]any {
	values := map[string]any{
		"thread_id": event.ThreadID,
		"user":      event.User,
		"assistant": event.Assistant,
		"route":     string(event.Route),
		"at":        event.At.UTC().Format(time.RFC3339Nano),
		"attempt":   attempt,
	}
	if event.TraceID != "" {
		values["trace_id"] = event.TraceID
	}
	return values
}
