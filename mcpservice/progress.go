package mcpservice

import "context"

// ProgressReporter reports progress of a long-running request. The engine
// injects one into the request context when the client supplied a progress
// token; server code retrieves it with ProgressFrom.
type ProgressReporter interface {
	// Report emits a progress update. total and message may be zero values
	// when unknown. Every report is delivered before the request's response.
	Report(ctx context.Context, progress, total float64, message string) error
}

type progressKey struct{}

// WithProgressReporter returns a new context carrying the provided reporter.
func WithProgressReporter(ctx context.Context, pr ProgressReporter) context.Context {
	if pr == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, pr)
}

// ProgressFrom retrieves a ProgressReporter from the context if present.
func ProgressFrom(ctx context.Context) (ProgressReporter, bool) {
	if v := ctx.Value(progressKey{}); v != nil {
		if pr, ok := v.(ProgressReporter); ok && pr != nil {
			return pr, true
		}
	}
	return nil, false
}
