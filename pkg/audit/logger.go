package audit

import "context"

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and closes the logger
	Close() error
}

// NopLogger discards every event. Used when auditing is disabled and in
// tests that do not assert on audit state.
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

// Close implements Logger
func (NopLogger) Close() error { return nil }
