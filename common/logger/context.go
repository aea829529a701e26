package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are structured fields added to every log record written with a context.
// Set them once where a turn or request starts; downstream code logs with the
// plain slog *Context functions and the fields come along.
type LogFields struct {
	ThreadID  *string // Conversation thread
	Node      *string // Workflow node currently running
	Route     *string // Route chosen by the intent router
	Caller    *string // Authenticated A2A caller identity
	SkillID   *string // A2A skill being executed
	MessageID *string // Redis stream message ID
	Component string  // Component name, e.g. "relay.brain.engine"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, newer non-nil/non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ThreadID != nil {
		result.ThreadID = next.ThreadID
	}
	if next.Node != nil {
		result.Node = next.Node
	}
	if next.Route != nil {
		result.Route = next.Route
	}
	if next.Caller != nil {
		result.Caller = next.Caller
	}
	if next.SkillID != nil {
		result.SkillID = next.SkillID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr returns a pointer to v, for inline LogFields: logger.LogFields{ThreadID: logger.Ptr(id)}.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen bytes, appending "..." if it was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
