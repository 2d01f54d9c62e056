package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	postIDKey   contextKey = "post_id"
	threadIDKey contextKey = "thread_id"
)

// WithRunID annotates context with the scheduler run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext extracts the scheduler run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithPostID annotates context with the queued post being handled.
func WithPostID(ctx context.Context, id string) context.Context {
	return withString(ctx, postIDKey, id)
}

// PostIDFromContext returns the post identifier if present.
func PostIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, postIDKey)
}

// WithThreadID annotates context with the thread a post belongs to.
func WithThreadID(ctx context.Context, id string) context.Context {
	return withString(ctx, threadIDKey, id)
}

// ThreadIDFromContext returns the thread identifier if present.
func ThreadIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, threadIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
