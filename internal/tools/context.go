package tools

import "context"

type threadKey struct{}

// WithThreadID attaches the active thread to ctx for gated tools.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadKey{}, threadID)
}

// ThreadIDFrom returns the thread attached by WithThreadID, or "".
func ThreadIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(threadKey{}).(string)
	return id
}
