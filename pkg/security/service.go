// Package security applies and verifies digital signatures and performs
// authenticated encryption of envelope payloads.
//
// Signatures are computed over the RFC 8785 canonical serialization of
// the envelope (security section excluded), so verification is
// deterministic regardless of transport re-encoding. All failures are
// fail-closed and error details never include key material or plaintext.
package security

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/radiant-labs/uep/pkg/canonicalize"
	"github.com/radiant-labs/uep/pkg/contracts"
)

// SecurityError codes.
const (
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeUnknownKey       = "UNKNOWN_KEY"
	CodeDecryptFailed    = "DECRYPT_FAILED"
	CodeUnsupportedAlg   = "UNSUPPORTED_ALGORITHM"
	CodePolicyViolation  = "POLICY_VIOLATION"
	CodeMalformed        = "MALFORMED"
)

// SecurityError is the typed failure for every security operation. The
// message is deliberately generic; diagnostic specifics stay out of
// error strings so they cannot leak through producer-facing reports.
type SecurityError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security: %s: %s", e.Code, e.Message)
}

func secErr(code, message string) *SecurityError {
	return &SecurityError{Code: code, Message: message}
}

// KeyResolver resolves per-tenant key material by reference. Resolution
// may involve I/O; implementations must honor ctx cancellation.
type KeyResolver interface {
	// ResolveVerifyKey returns the public signing key for keyRef.
	ResolveVerifyKey(ctx context.Context, tenantID, keyRef string) (ed25519.PublicKey, error)
	// ResolveSecret returns the 32-byte AEAD key for keyRef.
	ResolveSecret(ctx context.Context, tenantID, keyRef string) ([]byte, error)
}

// Signer holds a private signing key under a key reference.
type Signer struct {
	KeyRef string
	priv   ed25519.PrivateKey
}

// NewSigner wraps an ed25519 private key.
func NewSigner(keyRef string, priv ed25519.PrivateKey) *Signer {
	return &Signer{KeyRef: keyRef, priv: priv}
}

// Public returns the signer's public key.
func (s *Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// Service signs, verifies, encrypts, and decrypts. It is stateless and
// safe for concurrent use.
type Service struct {
	clock func() time.Time
}

// NewService creates a security service.
func NewService() *Service {
	return &Service{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// SigningBytes returns the canonical serialization an envelope signature
// covers: the envelope with its security section removed.
func SigningBytes(env *contracts.Envelope) ([]byte, error) {
	shallow := *env
	shallow.Security = nil
	b, err := canonicalize.Canonical(&shallow)
	if err != nil {
		return nil, secErr(CodeMalformed, "envelope cannot be canonicalized")
	}
	return b, nil
}

// Sign computes the envelope signature and returns the security envelope
// to attach immediately before transport handoff.
func (s *Service) Sign(env *contracts.Envelope, signer *Signer) (*contracts.SecurityEnvelope, error) {
	data, err := SigningBytes(env)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(signer.priv, data)
	return &contracts.SecurityEnvelope{
		SignatureAlgorithm: contracts.SigAlgEd25519,
		KeyRef:             signer.KeyRef,
		Signature:          hexEncode(sig),
		SignedAt:           s.clock().UTC(),
	}, nil
}

// Verify checks an envelope signature. It runs before any other
// processing of a received envelope and is fail-closed.
func (s *Service) Verify(ctx context.Context, env *contracts.Envelope, sec *contracts.SecurityEnvelope, resolver KeyResolver) error {
	if sec == nil || sec.Signature == "" {
		return secErr(CodeInvalidSignature, "missing signature")
	}
	if sec.SignatureAlgorithm != contracts.SigAlgEd25519 {
		return secErr(CodeUnsupportedAlg, "unsupported signature algorithm")
	}

	pub, err := resolver.ResolveVerifyKey(ctx, env.TenantID(), sec.KeyRef)
	if err != nil {
		return secErr(CodeUnknownKey, "verification key unavailable")
	}
	if len(pub) != ed25519.PublicKeySize {
		return secErr(CodeUnknownKey, "verification key malformed")
	}

	sig, err := hexDecode(sec.Signature)
	if err != nil {
		return secErr(CodeInvalidSignature, "signature is not valid hex")
	}

	data, err := SigningBytes(env)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, data, sig) {
		return secErr(CodeInvalidSignature, "signature does not match envelope content")
	}
	return nil
}
