// Package codec encodes and decodes the payload section of UEP
// envelopes: inline data, external content references, or ordered
// multi-part mixed content.
//
// The codec decides delivery by policy (size threshold and content-type
// class), computes integrity hashes over the canonical byte
// representation of content, and enforces the mandatory-encryption gate
// for payloads the compliance collaborator flags as sensitive.
package codec

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/radiant-labs/uep/pkg/artifacts"
	"github.com/radiant-labs/uep/pkg/canonicalize"
	"github.com/radiant-labs/uep/pkg/compliance"
	"github.com/radiant-labs/uep/pkg/contracts"
	"github.com/radiant-labs/uep/pkg/security"
)

// DefaultInlineMaxBytes is the inline size threshold: structured or text
// content at or under this size is delivered inline.
const DefaultInlineMaxBytes = 1 << 20 // 1 MiB

// ErrChunkedPayload is returned by Decode for chunked payloads, whose
// bytes arrive across stream envelopes and are reassembled by the
// stream manager.
var ErrChunkedPayload = errors.New("codec: chunked payload carries no decodable content")

// IntegrityError reports a content-hash mismatch on decode. It is
// fail-closed: the payload is discarded, never silently accepted.
type IntegrityError struct {
	Algorithm string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("codec: %s integrity check failed: stored %s, computed %s",
		e.Algorithm, e.Expected, e.Actual)
}

// Policy configures encoding decisions.
type Policy struct {
	InlineMaxBytes int64
	HashAlgorithm  string // canonicalize.AlgSHA256 or AlgBLAKE2b256
}

// DefaultPolicy returns the default encoding policy.
func DefaultPolicy() Policy {
	return Policy{
		InlineMaxBytes: DefaultInlineMaxBytes,
		HashAlgorithm:  canonicalize.AlgSHA256,
	}
}

// Codec encodes and decodes payloads. All methods are safe for
// concurrent use.
type Codec struct {
	policy     Policy
	store      artifacts.Store
	classifier compliance.Classifier
	enforcer   *security.PolicyEnforcer
	logger     *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithComplianceGate installs the classifier and policy enforcer that
// refuse plaintext emission of sensitive content.
func WithComplianceGate(c compliance.Classifier, e *security.PolicyEnforcer) Option {
	return func(cd *Codec) {
		cd.classifier = c
		cd.enforcer = e
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cd *Codec) { cd.logger = l }
}

// New creates a codec backed by the given artifact store.
func New(policy Policy, store artifacts.Store, opts ...Option) *Codec {
	if policy.InlineMaxBytes <= 0 {
		policy.InlineMaxBytes = DefaultInlineMaxBytes
	}
	if policy.HashAlgorithm == "" {
		policy.HashAlgorithm = canonicalize.AlgSHA256
	}
	c := &Codec{policy: policy, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// textual reports whether a content type belongs to the structured-or-
// text class eligible for inline delivery by default.
func textual(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case ct == "application/json", ct == "application/xml",
		ct == "application/x-www-form-urlencoded":
		return true
	case strings.HasSuffix(ct, "+json"), strings.HasSuffix(ct, "+xml"):
		return true
	}
	return false
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// contentHash computes the integrity digest over the canonical byte
// representation: JCS form for JSON, NFC-normalized bytes for text, raw
// bytes otherwise. Decode recomputes with the same rules.
func (c *Codec) contentHash(contentType string, raw []byte) (*contracts.PayloadHash, error) {
	canonical := raw
	switch {
	case isJSON(contentType):
		var err error
		canonical, err = canonicalize.CanonicalRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("codec: canonicalize json content: %w", err)
		}
	case textual(contentType):
		var err error
		canonical, err = canonicalize.NormalizeText(raw)
		if err != nil {
			return nil, fmt.Errorf("codec: normalize text content: %w", err)
		}
	}
	digest, err := canonicalize.Hash(c.policy.HashAlgorithm, canonical)
	if err != nil {
		return nil, err
	}
	return &contracts.PayloadHash{Algorithm: c.policy.HashAlgorithm, Digest: digest}, nil
}

func (c *Codec) gate(ctx context.Context, contentType string, raw []byte, delivery contracts.DeliveryMode) error {
	if c.classifier == nil || c.enforcer == nil {
		return nil
	}
	report, err := c.classifier.Classify(ctx, contentType, raw)
	if err != nil {
		return fmt.Errorf("codec: compliance classification: %w", err)
	}
	return c.enforcer.CheckPlaintextDelivery(report, delivery)
}

// Encode builds a payload for raw content. Structured or text content at
// or under the inline threshold is delivered inline; everything else is
// uploaded to artifact storage and delivered by reference. Content the
// compliance gate flags as sensitive is refused; callers route it
// through EncodeForEncryption and the security service instead.
func (c *Codec) Encode(ctx context.Context, raw []byte, contentType string) (*contracts.Payload, error) {
	delivery := contracts.DeliveryReference
	if textual(contentType) && int64(len(raw)) <= c.policy.InlineMaxBytes {
		delivery = contracts.DeliveryInline
	}
	if err := c.gate(ctx, contentType, raw, delivery); err != nil {
		return nil, err
	}
	return c.encodeAs(ctx, raw, contentType, delivery)
}

// EncodeInline forces inline delivery regardless of content class, e.g.
// for small binary content a producer wants carried in-band. The
// compliance gate still applies.
func (c *Codec) EncodeInline(ctx context.Context, raw []byte, contentType string) (*contracts.Payload, error) {
	if err := c.gate(ctx, contentType, raw, contracts.DeliveryInline); err != nil {
		return nil, err
	}
	return c.encodeAs(ctx, raw, contentType, contracts.DeliveryInline)
}

// EncodeForEncryption builds the plaintext payload that the security
// service seals immediately afterwards. The compliance gate is skipped
// because the result never leaves the process unencrypted.
func (c *Codec) EncodeForEncryption(ctx context.Context, raw []byte, contentType string) (*contracts.Payload, error) {
	return c.encodeAs(ctx, raw, contentType, contracts.DeliveryInline)
}

// EncodeChunked builds the payload shell announced by a stream.start
// envelope. Bytes arrive across subsequent chunk envelopes; when the
// producer knows the full content up front the end-to-end hash is
// attached for verification at reassembly, and the compliance gate
// runs against it.
func (c *Codec) EncodeChunked(ctx context.Context, contentType string, totalSize int64, full []byte) (*contracts.Payload, error) {
	if full != nil {
		if err := c.gate(ctx, contentType, full, contracts.DeliveryChunked); err != nil {
			return nil, err
		}
	}
	p := &contracts.Payload{
		ContentType: contentType,
		Delivery:    contracts.DeliveryChunked,
	}
	if totalSize > 0 {
		p.SizeBytes = &totalSize
	}
	if full != nil {
		hash, err := c.contentHash(contentType, full)
		if err != nil {
			return nil, err
		}
		p.Hash = hash
	}
	return p, nil
}

func (c *Codec) encodeAs(ctx context.Context, raw []byte, contentType string, delivery contracts.DeliveryMode) (*contracts.Payload, error) {
	hash, err := c.contentHash(contentType, raw)
	if err != nil {
		return nil, err
	}
	size := int64(len(raw))
	p := &contracts.Payload{
		ContentType: contentType,
		Delivery:    delivery,
		Hash:        hash,
		SizeBytes:   &size,
	}

	switch delivery {
	case contracts.DeliveryInline:
		if isJSON(contentType) {
			if !json.Valid(raw) {
				return nil, fmt.Errorf("codec: content-type %s but data is not valid JSON", contentType)
			}
			p.Data = json.RawMessage(raw)
			return p, nil
		}
		if textual(contentType) {
			quoted, err := json.Marshal(string(raw))
			if err != nil {
				return nil, fmt.Errorf("codec: quote text content: %w", err)
			}
			p.Data = quoted
			return p, nil
		}
		encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(raw))
		if err != nil {
			return nil, fmt.Errorf("codec: base64 content: %w", err)
		}
		p.ContentEncoding = contracts.EncodingBase64
		p.Data = encoded
		return p, nil

	case contracts.DeliveryReference:
		ref, err := c.upload(ctx, raw)
		if err != nil {
			return nil, err
		}
		p.Reference = ref
		return p, nil

	default:
		return nil, fmt.Errorf("codec: cannot encode delivery mode %q directly", delivery)
	}
}

// Result is the outcome of Decode: exactly one of Data, Handle, or
// Parts is set.
type Result struct {
	Data   []byte
	Handle *ReferenceHandle
	Parts  []PartResult
}

// PartResult is one decoded element of a multi-part payload.
type PartResult struct {
	ContentType string
	Data        []byte
	Handle      *ReferenceHandle
}

// Decode extracts content from a payload. Inline data is returned with
// its integrity hash re-verified; reference payloads return a handle
// without fetching; chunked payloads return ErrChunkedPayload.
func (c *Codec) Decode(ctx context.Context, p *contracts.Payload) (*Result, error) {
	switch p.Delivery {
	case contracts.DeliveryInline:
		if len(p.Parts) > 0 {
			return c.decodeParts(p)
		}
		data, err := c.decodeInline(p.ContentType, p.ContentEncoding, p.Data, p.Hash)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data}, nil

	case contracts.DeliveryReference:
		if p.Reference == nil {
			return nil, errors.New("codec: reference payload missing reference")
		}
		return &Result{Handle: c.newHandle(p.Reference, p.Hash, p.ContentType)}, nil

	case contracts.DeliveryChunked:
		return nil, ErrChunkedPayload

	default:
		return nil, fmt.Errorf("codec: unknown delivery mode %q", p.Delivery)
	}
}

func (c *Codec) decodeParts(p *contracts.Payload) (*Result, error) {
	out := &Result{Parts: make([]PartResult, 0, len(p.Parts))}
	for i, part := range p.Parts {
		if part.Reference != nil {
			out.Parts = append(out.Parts, PartResult{
				ContentType: part.ContentType,
				Handle:      c.newHandle(part.Reference, part.Hash, part.ContentType),
			})
			continue
		}
		data, err := c.decodeInline(part.ContentType, part.ContentEncoding, part.Data, part.Hash)
		if err != nil {
			return nil, fmt.Errorf("codec: part %d: %w", i, err)
		}
		out.Parts = append(out.Parts, PartResult{ContentType: part.ContentType, Data: data})
	}
	return out, nil
}

func (c *Codec) decodeInline(contentType, encoding string, data json.RawMessage, stored *contracts.PayloadHash) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("codec: inline payload missing data")
	}

	var raw []byte
	if encoding == contracts.EncodingBase64 {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("codec: base64 data is not a JSON string: %w", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("codec: base64 decode: %w", err)
		}
		raw = decoded
	} else if textual(contentType) && !isJSON(contentType) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("codec: text data is not a JSON string: %w", err)
		}
		raw = []byte(s)
	} else {
		raw = []byte(data)
	}

	if stored != nil {
		if err := c.verifyHash(contentType, raw, stored); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// VerifyContent checks raw content against a stored integrity hash using
// the same canonical-form rules as encoding. A nil hash passes.
func (c *Codec) VerifyContent(contentType string, raw []byte, stored *contracts.PayloadHash) error {
	if stored == nil {
		return nil
	}
	return c.verifyHash(contentType, raw, stored)
}

func (c *Codec) verifyHash(contentType string, raw []byte, stored *contracts.PayloadHash) error {
	canonical := raw
	switch {
	case isJSON(contentType):
		var err error
		canonical, err = canonicalize.CanonicalRaw(raw)
		if err != nil {
			return fmt.Errorf("codec: canonicalize for verification: %w", err)
		}
	case textual(contentType):
		var err error
		canonical, err = canonicalize.NormalizeText(raw)
		if err != nil {
			return fmt.Errorf("codec: normalize for verification: %w", err)
		}
	}
	computed, err := canonicalize.Hash(stored.Algorithm, canonical)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(stored.Digest)) != 1 {
		return &IntegrityError{
			Algorithm: stored.Algorithm,
			Expected:  stored.Digest,
			Actual:    computed,
		}
	}
	return nil
}
