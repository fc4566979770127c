// Package artifacts is the artifact-storage collaborator for
// reference-delivered payloads. Bytes are content-addressed by SHA-256;
// the envelope only ever borrows a ContentReference URI, the store owns
// the bytes.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// ErrNotFound is returned when no artifact exists under a hash.
var ErrNotFound = errors.New("artifact not found")

// ByteRange selects a half-open slice of an artifact for range-capable
// references. Length 0 means "to the end".
type ByteRange struct {
	Offset int64
	Length int64
}

// Store is the contract for content-addressed artifact storage.
type Store interface {
	// Store persists data and returns its content hash ("sha256:<hex>").
	Store(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by its content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// GetRange retrieves a byte range of an artifact.
	GetRange(ctx context.Context, hash string, rng ByteRange) ([]byte, error)
	// Exists checks whether an artifact exists.
	Exists(ctx context.Context, hash string) (bool, error)
	// Delete removes an artifact.
	Delete(ctx context.Context, hash string) error
	// RangeSupported reports whether GetRange is served natively.
	RangeSupported() bool
}

// RefScheme is the protocol tag of references minted by Upload.
const RefScheme = "uep-artifact"

// Upload stores data and mints the ContentReference an envelope embeds.
func Upload(ctx context.Context, s Store, data []byte) (*contracts.ContentReference, error) {
	hash, err := s.Store(ctx, data)
	if err != nil {
		return nil, err
	}
	return &contracts.ContentReference{
		URI:            RefScheme + "://" + hash,
		Protocol:       RefScheme,
		AccessMethod:   "internal",
		RangeSupported: s.RangeSupported(),
	}, nil
}

// HashFromReference extracts the content hash from a reference minted by
// Upload.
func HashFromReference(ref *contracts.ContentReference) (string, error) {
	if ref == nil {
		return "", errors.New("artifacts: nil reference")
	}
	const prefix = RefScheme + "://"
	if !strings.HasPrefix(ref.URI, prefix) {
		return "", fmt.Errorf("artifacts: unsupported reference uri %q", ref.URI)
	}
	return strings.TrimPrefix(ref.URI, prefix), nil
}

// CredentialValid reports whether a reference's scoped credential, if any,
// has not expired.
func CredentialValid(ref *contracts.ContentReference, now time.Time) bool {
	if ref.Credential == nil {
		return true
	}
	exp, err := time.Parse(time.RFC3339, ref.Credential.ExpiresAt)
	if err != nil {
		return false
	}
	return now.Before(exp)
}

func contentHash(data []byte) (prefixed, raw string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return "sha256:" + raw, raw
}

func parseHash(hash string) (string, error) {
	const p = "sha256:"
	if !strings.HasPrefix(hash, p) {
		return "", fmt.Errorf("artifacts: invalid hash format %q", hash)
	}
	raw := strings.TrimPrefix(hash, p)
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("artifacts: invalid hash hex: %w", err)
	}
	return raw, nil
}

func sliceRange(data []byte, rng ByteRange) ([]byte, error) {
	if rng.Offset < 0 || rng.Offset > int64(len(data)) {
		return nil, fmt.Errorf("artifacts: range offset %d out of bounds", rng.Offset)
	}
	end := int64(len(data))
	if rng.Length > 0 && rng.Offset+rng.Length < end {
		end = rng.Offset + rng.Length
	}
	return data[rng.Offset:end], nil
}

// FileStore is a filesystem-backed Store. Writes are atomic (temp file +
// rename) and idempotent by content hash.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) RangeSupported() bool { return true }

func (s *FileStore) Store(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefixed, raw := contentHash(data)
	path := filepath.Join(s.baseDir, raw+".blob")

	if _, err := os.Stat(path); err == nil {
		return prefixed, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("artifacts: commit blob: %w", err)
	}
	return prefixed, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("artifacts: read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) GetRange(ctx context.Context, hash string, rng ByteRange) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("artifacts: open blob: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Seek(rng.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("artifacts: seek: %w", err)
	}
	if rng.Length > 0 {
		buf := make([]byte, rng.Length)
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("artifacts: range read: %w", err)
		}
		return buf[:n], nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("artifacts: range read: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("artifacts: stat blob: %w", err)
}

func (s *FileStore) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := parseHash(hash)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: delete blob: %w", err)
	}
	return nil
}
