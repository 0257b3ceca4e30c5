package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID    contextKey = "trace_id"
	keyRequestID  contextKey = "request_id"
	keySubject    contextKey = "subject"
	keyCycleID    contextKey = "cycle_id"
	keyReconciler contextKey = "reconciler"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the inbound HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithSubject adds the authenticated operator (JWT subject or API key label) to context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, keySubject, subject)
}

// Subject extracts the authenticated operator from context.
func Subject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySubject).(string)
	return v, ok && v != ""
}

// WithCycleID adds reconciliation cycle ID to context.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, keyCycleID, cycleID)
}

// CycleID extracts reconciliation cycle ID from context.
func CycleID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCycleID).(string)
	return v, ok && v != ""
}

// WithReconciler adds the running reconciler name to context.
func WithReconciler(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyReconciler, name)
}

// Reconciler extracts the running reconciler name from context.
func Reconciler(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyReconciler).(string)
	return v, ok && v != ""
}
