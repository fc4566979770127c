// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and content hashing for UEP envelopes and payloads.
//
// Every signature and integrity digest in the protocol is computed over
// the canonical form produced here, so verification is deterministic
// regardless of how a transport re-encodes the JSON.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// Hash algorithm identifiers. Both are 256-bit digests.
const (
	AlgSHA256     = "sha-256"
	AlgBLAKE2b256 = "blake2b-256"
)

// Canonical returns the RFC 8785 canonical JSON form of v: lexicographic
// key order, no HTML escaping, no insignificant whitespace.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// CanonicalRaw canonicalizes already-serialized JSON bytes.
func CanonicalRaw(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// NormalizeText returns the NFC normalization of a UTF-8 text payload so
// that semantically identical Unicode sequences hash identically.
func NormalizeText(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("canonicalize: invalid UTF-8 text")
	}
	return norm.NFC.Bytes(data), nil
}

// Hash digests data with the named algorithm and returns the hex digest.
func Hash(alg string, data []byte) (string, error) {
	switch alg {
	case AlgSHA256, "":
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case AlgBLAKE2b256:
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("canonicalize: unsupported hash algorithm %q", alg)
	}
}

// CanonicalHash canonicalizes v and returns its hex digest under alg.
func CanonicalHash(alg string, v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Hash(alg, b)
}
