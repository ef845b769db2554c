// Package publish implements event.Sink on NATS JetStream.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventStreamName is the JetStream stream holding all outbound engine
// events.
const EventStreamName = "RISK_ENGINE_EVENTS"

// NATSSink publishes engine events to JetStream. Subjects are the constants
// in the event package; payloads are JSON. Publish failures bubble up so the
// caller can log and move on. Nothing on the payment path waits for a
// redelivery.
type NATSSink struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NewNATSSink creates a sink on an existing JetStream context.
func NewNATSSink(js jetstream.JetStream, log zerolog.Logger) *NATSSink {
	return &NATSSink{js: js, log: log}
}

// Publish marshals payload and publishes it on subject.
func (s *NATSSink) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	s.log.Debug().Str("subject", subject).Msg("event published")
	return nil
}

// EnsureEventStream creates or updates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      EventStreamName,
		Subjects:  []string{"risk.engine.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	return nil
}
