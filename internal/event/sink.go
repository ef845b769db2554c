package event

import "context"

// Sink publishes engine events to subscribers. Publishing is fire-and-forget
// for the payment path: callers log failures, increment a metric, and move
// on. A sink must never block beyond its own transport timeout.
type Sink interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// NopSink discards everything. Used in tests and when NATS is not configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, string, any) error { return nil }
