package ctxutil

import "context"

type traceDataKey struct{}
type authorKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// WithAuthor stores the initials of the user performing the request.
// Every versioning mutation records them on the audit trail.
func WithAuthor(ctx context.Context, initials string) context.Context {
	return context.WithValue(ctx, authorKey{}, initials)
}

// Author returns the user initials attached to the context, or "" when
// the request was not authenticated.
func Author(ctx context.Context) string {
	if v, ok := ctx.Value(authorKey{}).(string); ok {
		return v
	}
	return ""
}
