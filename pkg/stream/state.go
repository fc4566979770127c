// Package stream implements the chunked-stream state machine: start,
// chunk, end, error, and cancel transitions over per-tenant stream
// state, with signed resume tokens for interrupted transfers.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// Phase is the lifecycle phase of a stream. Completed, failed, and
// cancelled are terminal.
type Phase string

const (
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// State is the persistent record of one stream, keyed by
// (tenant, stream id). Revision implements optimistic concurrency:
// every successful Put increments it, and a Put against a stale
// revision fails with ErrConflict.
type State struct {
	TenantID string `json:"tenantId"`
	StreamID string `json:"streamId"`

	ContentType      string                 `json:"contentType"`
	Phase            Phase                  `json:"phase"`
	LastSequence     int64                  `json:"lastSequence"`
	ExpectedTotal    *int64                 `json:"expectedTotal,omitempty"`
	ExpectedBytes    *int64                 `json:"expectedBytes,omitempty"`
	Offset           int64                  `json:"offset"`
	RequiresOrdering bool                   `json:"requiresOrdering"`
	Resumable        bool                   `json:"resumable"`
	Hash             *contracts.PayloadHash `json:"hash,omitempty"`
	FailureReason    string                 `json:"failureReason,omitempty"`

	// Seen records every accepted sequence number, so unordered streams
	// can detect duplicates and End can check completeness.
	Seen map[int64]bool `json:"seen"`

	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Revision  int64     `json:"revision"`
}

// Clone returns a deep copy safe for mutation.
func (s *State) Clone() *State {
	out := *s
	out.Seen = make(map[int64]bool, len(s.Seen))
	for k, v := range s.Seen {
		out.Seen[k] = v
	}
	if s.ExpectedTotal != nil {
		t := *s.ExpectedTotal
		out.ExpectedTotal = &t
	}
	if s.ExpectedBytes != nil {
		b := *s.ExpectedBytes
		out.ExpectedBytes = &b
	}
	if s.Hash != nil {
		h := *s.Hash
		out.Hash = &h
	}
	return &out
}

// ErrStateNotFound is returned by StateStore.Get for unknown streams.
var ErrStateNotFound = errors.New("stream state not found")

// ErrConflict is returned by StateStore.Put when the stored revision no
// longer matches the caller's expectation.
var ErrConflict = errors.New("stream state concurrently modified")

// StateStore persists stream state. Implementations must make Put
// atomic with respect to the revision check.
type StateStore interface {
	// Get loads the state for (tenantID, streamID).
	Get(ctx context.Context, tenantID, streamID string) (*State, error)
	// Put stores state if the persisted revision equals expectedRevision
	// (0 for a new stream), then increments state.Revision.
	Put(ctx context.Context, state *State, expectedRevision int64) error
	// Delete removes a stream record.
	Delete(ctx context.Context, tenantID, streamID string) error
	// ListActive returns every stream currently in the active phase.
	ListActive(ctx context.Context) ([]*State, error)
}
