package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// Option mutates an envelope under construction.
type Option func(*contracts.Envelope)

// WithDestination sets the destination card.
func WithDestination(d *contracts.DestinationCard) Option {
	return func(e *contracts.Envelope) { e.Destination = d }
}

// WithStreaming attaches streaming info.
func WithStreaming(s *contracts.StreamingInfo) Option {
	return func(e *contracts.Envelope) { e.Streaming = s }
}

// WithTracing attaches a tracing context.
func WithTracing(t *contracts.TracingContext) Option {
	return func(e *contracts.Envelope) { e.Tracing = t }
}

// WithCompliance attaches a compliance verdict.
func WithCompliance(c *contracts.ComplianceInfo) Option {
	return func(e *contracts.Envelope) { e.Compliance = c }
}

// WithConfidence attaches a confidence score.
func WithConfidence(c float64) Option {
	return func(e *contracts.Envelope) { e.Confidence = &c }
}

// WithExtension sets one opaque extension entry.
func WithExtension(key string, raw []byte) Option {
	return func(e *contracts.Envelope) {
		if e.Extensions == nil {
			e.Extensions = make(map[string]json.RawMessage)
		}
		e.Extensions[key] = json.RawMessage(raw)
	}
}

// New builds an envelope with a time-ordered (UUIDv7) identifier, the
// current protocol version, and a UTC timestamp. The result is not
// validated; callers run it through a Validator before handoff.
func New(envType contracts.EnvelopeType, source contracts.SourceCard, payload contracts.Payload, opts ...Option) (*contracts.Envelope, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("envelope: generate id: %w", err)
	}

	env := &contracts.Envelope{
		EnvelopeID:  id.String(),
		SpecVersion: contracts.SpecVersion,
		Type:        envType,
		Source:      source,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}
