package invocation

import "context"

type contextKey struct{}

// WithID returns a context that carries the invocation ID of one function
// run. Use ID(ctx) to retrieve it. An empty id leaves ctx unchanged.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the invocation ID from the context, or empty string if not set.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(contextKey{}).(string)
	return s
}
