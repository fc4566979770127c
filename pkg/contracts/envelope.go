// Package contracts defines the wire types of the Universal Envelope
// Protocol (UEP): the envelope itself, its payload section, source and
// destination cards, streaming metadata, and the security envelope.
//
// These structs are the language-neutral JSON contract shared by every
// subsystem. Field names follow the wire format exactly; no layer above
// this package invents its own serialization.
package contracts

import (
	"encoding/json"
	"time"
)

// SpecVersion is the protocol version tag stamped on every envelope
// produced by this module.
const SpecVersion = "2.0"

// EnvelopeType is the closed set of envelope types. Adding a member means
// updating KnownTypes, Class, and the wire schema — a deliberate,
// compiler-visible touch-point rather than a loose string.
type EnvelopeType string

const (
	TypeMethodInput  EnvelopeType = "method.input"
	TypeMethodOutput EnvelopeType = "method.output"

	TypeStreamStart  EnvelopeType = "stream.start"
	TypeStreamChunk  EnvelopeType = "stream.chunk"
	TypeStreamEnd    EnvelopeType = "stream.end"
	TypeStreamError  EnvelopeType = "stream.error"
	TypeStreamCancel EnvelopeType = "stream.cancel"

	TypeArtifactCreated   EnvelopeType = "artifact.created"
	TypeArtifactReference EnvelopeType = "artifact.reference"

	TypeControlAck        EnvelopeType = "control.ack"
	TypeControlNack       EnvelopeType = "control.nack"
	TypeControlHeartbeat  EnvelopeType = "control.heartbeat"
	TypeControlCapability EnvelopeType = "control.capability"

	TypeEventCheckpoint EnvelopeType = "event.checkpoint"
	TypeEventProgress   EnvelopeType = "event.progress"
	TypeEventError      EnvelopeType = "event.error"
)

// TypeClass groups envelope types by their processing path.
type TypeClass string

const (
	ClassMethod   TypeClass = "method"
	ClassStream   TypeClass = "stream"
	ClassArtifact TypeClass = "artifact"
	ClassControl  TypeClass = "control"
	ClassEvent    TypeClass = "event"
	ClassUnknown  TypeClass = "unknown"
)

// KnownTypes returns every member of the closed type set.
func KnownTypes() []EnvelopeType {
	return []EnvelopeType{
		TypeMethodInput, TypeMethodOutput,
		TypeStreamStart, TypeStreamChunk, TypeStreamEnd, TypeStreamError, TypeStreamCancel,
		TypeArtifactCreated, TypeArtifactReference,
		TypeControlAck, TypeControlNack, TypeControlHeartbeat, TypeControlCapability,
		TypeEventCheckpoint, TypeEventProgress, TypeEventError,
	}
}

// Valid reports whether t is a member of the closed type set.
func (t EnvelopeType) Valid() bool {
	return t.Class() != ClassUnknown
}

// Class returns the processing class of the type. The switch is exhaustive
// over the closed set; an unknown string maps to ClassUnknown.
func (t EnvelopeType) Class() TypeClass {
	switch t {
	case TypeMethodInput, TypeMethodOutput:
		return ClassMethod
	case TypeStreamStart, TypeStreamChunk, TypeStreamEnd, TypeStreamError, TypeStreamCancel:
		return ClassStream
	case TypeArtifactCreated, TypeArtifactReference:
		return ClassArtifact
	case TypeControlAck, TypeControlNack, TypeControlHeartbeat, TypeControlCapability:
		return ClassControl
	case TypeEventCheckpoint, TypeEventProgress, TypeEventError:
		return ClassEvent
	default:
		return ClassUnknown
	}
}

// IsStreaming reports whether envelopes of this type must carry streaming info.
func (t EnvelopeType) IsStreaming() bool {
	return t.Class() == ClassStream
}

// Envelope is the unit of transmission.
type Envelope struct {
	EnvelopeID  string       `json:"envelopeId"`
	SpecVersion string       `json:"specversion"`
	Type        EnvelopeType `json:"type"`
	Source      SourceCard   `json:"source"`
	Destination *DestinationCard `json:"destination,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Payload     Payload      `json:"payload"`

	Streaming  *StreamingInfo  `json:"streaming,omitempty"`
	Tracing    *TracingContext `json:"tracing,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	RiskSignals []RiskSignal   `json:"riskSignals,omitempty"`
	Compliance *ComplianceInfo `json:"compliance,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`

	// Security is attached immediately before transport handoff and
	// verified before any other processing on receipt.
	Security *SecurityEnvelope `json:"security,omitempty"`

	// Extensions carries opaque extension entries. Consumers that
	// understand a given key decode it explicitly; nothing dispatches
	// on extension content.
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
}

// TenantID returns the tenant correlation id of the producing source,
// defaulting to "default" when the execution context carries none.
// Streams and key material are partitioned by this value.
func (e *Envelope) TenantID() string {
	if e.Source.Context != nil && e.Source.Context.TenantID != "" {
		return e.Source.Context.TenantID
	}
	return "default"
}

// StreamingInfo describes an envelope's position within a chunked stream.
type StreamingInfo struct {
	StreamID        string       `json:"streamId"`
	Sequence        SequenceInfo `json:"sequence"`
	Progress        *float64     `json:"progress,omitempty"`
	Resumable       bool         `json:"resumable"`
	ResumeToken     string       `json:"resumeToken,omitempty"`
	UploadOffset    int64        `json:"uploadOffset,omitempty"`
	RequiresOrdering bool        `json:"requiresOrdering,omitempty"`
}

// SequenceInfo orders one envelope within its stream. Total is unknown
// when nil. IsLast=true requires a known total.
type SequenceInfo struct {
	Current int64  `json:"current"`
	Total   *int64 `json:"total,omitempty"`
	IsFirst bool   `json:"isFirst"`
	IsLast  bool   `json:"isLast"`
}

// TracingContext propagates distributed-trace correlation.
type TracingContext struct {
	TraceID      string `json:"traceId"`
	SpanID       string `json:"spanId"`
	ParentSpanID string `json:"parentSpanId,omitempty"`
}

// RiskSignal is an advisory risk annotation attached by upstream analysis.
type RiskSignal struct {
	Type   string  `json:"type"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// ComplianceInfo is the classification verdict from the compliance
// collaborator, carried so receivers can enforce handling policy.
type ComplianceInfo struct {
	Classification string `json:"classification"`
	ContainsPII    bool   `json:"containsPii"`
	ContainsPHI    bool   `json:"containsPhi"`
}
