package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/radiant-labs/uep/pkg/canonicalize"
	"github.com/radiant-labs/uep/pkg/contracts"
)

const aeadTagSize = 16

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

func newAEAD(alg string, key []byte) (cipher.AEAD, error) {
	switch alg {
	case contracts.EncAlgAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, secErr(CodeDecryptFailed, "cipher init failed")
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, secErr(CodeDecryptFailed, "cipher init failed")
		}
		return gcm, nil
	case contracts.EncAlgChaCha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, secErr(CodeDecryptFailed, "cipher init failed")
		}
		return aead, nil
	default:
		return nil, secErr(CodeUnsupportedAlg, "unsupported encryption algorithm")
	}
}

// EncryptPayload seals a payload's canonical JSON under an AEAD keyed by
// keyRef. Ciphertext, nonce, and auth tag are stored separately; the key
// itself never appears in the result.
func (s *Service) EncryptPayload(ctx context.Context, p *contracts.Payload, alg, tenantID, keyRef string, resolver KeyResolver) (*contracts.EncryptedPayload, error) {
	key, err := resolver.ResolveSecret(ctx, tenantID, keyRef)
	if err != nil {
		return nil, secErr(CodeUnknownKey, "encryption key unavailable")
	}

	plaintext, err := canonicalize.Canonical(p)
	if err != nil {
		return nil, secErr(CodeMalformed, "payload cannot be canonicalized")
	}

	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, secErr(CodeDecryptFailed, "nonce generation failed")
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-aeadTagSize], sealed[len(sealed)-aeadTagSize:]

	if alg == "" {
		alg = contracts.EncAlgAESGCM
	}
	return &contracts.EncryptedPayload{
		ContentType: p.ContentType,
		Algorithm:   alg,
		KeyRef:      keyRef,
		Ciphertext:  base64.StdEncoding.EncodeToString(ct),
		IV:          base64.StdEncoding.EncodeToString(nonce),
		AuthTag:     base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// DecryptPayload opens an encrypted payload and decodes the original
// payload structure. Any tamper with ciphertext, nonce, or tag fails the
// AEAD open.
func (s *Service) DecryptPayload(ctx context.Context, enc *contracts.EncryptedPayload, tenantID string, resolver KeyResolver) (*contracts.Payload, error) {
	key, err := resolver.ResolveSecret(ctx, tenantID, enc.KeyRef)
	if err != nil {
		return nil, secErr(CodeUnknownKey, "decryption key unavailable")
	}

	aead, err := newAEAD(enc.Algorithm, key)
	if err != nil {
		return nil, err
	}

	ct, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, secErr(CodeMalformed, "ciphertext is not valid base64")
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return nil, secErr(CodeMalformed, "iv is not valid base64")
	}
	tag, err := base64.StdEncoding.DecodeString(enc.AuthTag)
	if err != nil {
		return nil, secErr(CodeMalformed, "auth tag is not valid base64")
	}
	if len(nonce) != aead.NonceSize() {
		return nil, secErr(CodeDecryptFailed, "payload authentication failed")
	}

	plaintext, err := aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, secErr(CodeDecryptFailed, "payload authentication failed")
	}

	var p contracts.Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, secErr(CodeMalformed, "decrypted payload is not a valid payload document")
	}
	return &p, nil
}
