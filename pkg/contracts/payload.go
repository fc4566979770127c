package contracts

import "encoding/json"

// DeliveryMode selects how payload bytes reach the consumer.
type DeliveryMode string

const (
	DeliveryInline    DeliveryMode = "inline"
	DeliveryReference DeliveryMode = "reference"
	DeliveryChunked   DeliveryMode = "chunked"
)

// Valid reports whether m is a known delivery mode.
func (m DeliveryMode) Valid() bool {
	switch m {
	case DeliveryInline, DeliveryReference, DeliveryChunked:
		return true
	}
	return false
}

// Content encodings understood by the codec.
const (
	EncodingIdentity = "identity"
	EncodingBase64   = "base64"
)

// Payload is the content section of an envelope. Exactly one of Data,
// Reference, or Parts is populated, matching Delivery:
//
//	inline    -> Data (raw JSON for structured content, base64-quoted
//	             string with ContentEncoding "base64" for binary)
//	reference -> Reference
//	chunked   -> none of the three; bytes arrive across stream.chunk
//	             envelopes
type Payload struct {
	ContentType     string           `json:"contentType"`
	Delivery        DeliveryMode     `json:"delivery"`
	ContentEncoding string           `json:"contentEncoding,omitempty"`
	Hash            *PayloadHash     `json:"hash,omitempty"`
	SizeBytes       *int64           `json:"sizeBytes,omitempty"`
	Data            json.RawMessage  `json:"data,omitempty"`
	Reference       *ContentReference `json:"reference,omitempty"`
	Parts           []PayloadPart    `json:"parts,omitempty"`
}

// PayloadHash is an integrity digest over the canonical byte
// representation of the content, computed before encoding.
type PayloadHash struct {
	Algorithm string `json:"algorithm"` // "sha-256" or "blake2b-256"
	Digest    string `json:"digest"`    // hex
}

// PayloadPart is one element of an ordered multi-part payload. Each part
// is independently content-typed and independently inline or referenced.
type PayloadPart struct {
	ContentType     string           `json:"contentType"`
	ContentEncoding string           `json:"contentEncoding,omitempty"`
	Hash            *PayloadHash     `json:"hash,omitempty"`
	SizeBytes       *int64           `json:"sizeBytes,omitempty"`
	Data            json.RawMessage  `json:"data,omitempty"`
	Reference       *ContentReference `json:"reference,omitempty"`
}

// ContentReference points at externally stored bytes. The envelope borrows
// the URI; artifact storage owns the bytes.
type ContentReference struct {
	URI            string              `json:"uri"`
	Protocol       string              `json:"protocol"`     // "uep-artifact", "s3", "gcs", "https"
	AccessMethod   string              `json:"accessMethod"` // "get", "presigned", "internal"
	Credential     *ScopedCredential   `json:"credential,omitempty"`
	RangeSupported bool                `json:"rangeSupported"`
}

// ScopedCredential is a short-lived access credential for a reference.
type ScopedCredential struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"` // RFC 3339
}

// EncryptedPayload replaces a Payload's plaintext sections after
// authenticated encryption. The original payload JSON is the AEAD
// plaintext; ContentType is retained for routing decisions only.
type EncryptedPayload struct {
	ContentType string `json:"contentType"`
	Algorithm   string `json:"algorithm"` // "aes-256-gcm" or "chacha20-poly1305"
	KeyRef      string `json:"keyRef"`
	Ciphertext  string `json:"ciphertext"` // base64
	IV          string `json:"iv"`         // base64 nonce
	AuthTag     string `json:"authTag"`    // base64
}
