package codec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/radiant-labs/uep/pkg/artifacts"
	"github.com/radiant-labs/uep/pkg/contracts"
)

const (
	fetchMaxTries        = 4
	fetchInitialInterval = 100 * time.Millisecond
)

func (c *Codec) upload(ctx context.Context, raw []byte) (*contracts.ContentReference, error) {
	if c.store == nil {
		return nil, errors.New("codec: no artifact store configured for reference delivery")
	}
	ref, err := artifacts.Upload(ctx, c.store, raw)
	if err != nil {
		return nil, fmt.Errorf("codec: upload artifact: %w", err)
	}
	return ref, nil
}

func (c *Codec) newHandle(ref *contracts.ContentReference, hash *contracts.PayloadHash, contentType string) *ReferenceHandle {
	return &ReferenceHandle{
		Reference:   ref,
		Hash:        hash,
		ContentType: contentType,
		codec:       c,
	}
}

// ReferenceHandle is a lazy accessor for reference-delivered content.
// Decode returns one without touching storage; Fetch pulls the bytes
// with bounded retries and re-verifies the integrity hash.
type ReferenceHandle struct {
	Reference   *contracts.ContentReference
	Hash        *contracts.PayloadHash
	ContentType string

	codec *Codec
}

// Fetch retrieves the referenced bytes. Transient storage failures are
// retried with exponential backoff; a missing artifact or an expired
// credential fails immediately. The returned bytes have passed the
// stored integrity hash, when one is present.
func (h *ReferenceHandle) Fetch(ctx context.Context) ([]byte, error) {
	if h.codec == nil || h.codec.store == nil {
		return nil, errors.New("codec: handle has no artifact store")
	}
	if !artifacts.CredentialValid(h.Reference, time.Now()) {
		return nil, errors.New("codec: reference credential expired")
	}
	hash, err := artifacts.HashFromReference(h.Reference)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = fetchInitialInterval

	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		b, err := h.codec.store.Get(ctx, hash)
		if errors.Is(err, artifacts.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return b, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(fetchMaxTries))
	if err != nil {
		return nil, fmt.Errorf("codec: fetch reference: %w", err)
	}

	if h.Hash != nil {
		if err := h.codec.verifyHash(h.ContentType, data, h.Hash); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// FetchRange retrieves a byte range of the referenced content when the
// backing store supports it. Range reads skip hash verification since
// the digest covers the whole artifact.
func (h *ReferenceHandle) FetchRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if h.codec == nil || h.codec.store == nil {
		return nil, errors.New("codec: handle has no artifact store")
	}
	if !h.Reference.RangeSupported {
		return nil, errors.New("codec: reference does not support range reads")
	}
	hash, err := artifacts.HashFromReference(h.Reference)
	if err != nil {
		return nil, err
	}
	return h.codec.store.GetRange(ctx, hash, artifacts.ByteRange{Offset: offset, Length: length})
}
