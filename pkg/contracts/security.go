package contracts

import "time"

// Signature and encryption algorithm identifiers.
const (
	SigAlgEd25519 = "ed25519"

	EncAlgAESGCM   = "aes-256-gcm"
	EncAlgChaCha20 = "chacha20-poly1305"
)

// SecurityEnvelope is attached to an Envelope when signing or encryption
// is applied. It is computed immediately before transport handoff and
// verified on receipt before any other processing proceeds.
//
// Key material is never embedded; KeyRef names a per-tenant key resolved
// by the receiver's key resolver.
type SecurityEnvelope struct {
	SignatureAlgorithm  string `json:"signatureAlgorithm,omitempty"`
	EncryptionAlgorithm string `json:"encryptionAlgorithm,omitempty"`
	KeyRef              string `json:"keyRef"`
	Signature           string `json:"signature,omitempty"` // hex
	SignedAt            time.Time `json:"signedAt"`
}
