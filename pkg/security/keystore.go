package security

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Keystore is a file-backed, per-tenant versioned key store. Each tenant
// holds a set of key versions; rotation adds a version while old versions
// remain available so previously signed or encrypted envelopes stay
// verifiable and decryptable.
//
// Key references have the form "v<N>".
type Keystore struct {
	mu      sync.RWMutex
	path    string
	tenants map[string]*tenantKeys
}

type tenantKeys struct {
	ActiveVersion int                    `json:"active_version"`
	Versions      map[string]keyMaterial `json:"versions"` // version -> material
}

type keyMaterial struct {
	Secret   string `json:"secret"`    // base64 32-byte AEAD key
	SignSeed string `json:"sign_seed"` // base64 ed25519 seed
}

// NewKeystore loads or creates a keystore at path.
func NewKeystore(path string) (*Keystore, error) {
	ks := &Keystore{path: path, tenants: make(map[string]*tenantKeys)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("keystore: create dir: %w", err)
		}
		return ks, ks.persist()
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read: %w", err)
	}
	if err := json.Unmarshal(data, &ks.tenants); err != nil {
		return nil, fmt.Errorf("keystore: parse: %w", err)
	}
	return ks, nil
}

// Provision generates the first key version for a tenant if none exists
// and returns the active key reference.
func (k *Keystore) Provision(tenantID string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if t, ok := k.tenants[tenantID]; ok {
		return keyRef(t.ActiveVersion), nil
	}
	material, err := generateMaterial()
	if err != nil {
		return "", err
	}
	k.tenants[tenantID] = &tenantKeys{
		ActiveVersion: 1,
		Versions:      map[string]keyMaterial{"1": material},
	}
	if err := k.persist(); err != nil {
		return "", err
	}
	return keyRef(1), nil
}

// Rotate generates a new active key version for a tenant. Old versions
// are retained for verification and decryption.
func (k *Keystore) Rotate(tenantID string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.tenants[tenantID]
	if !ok {
		return "", fmt.Errorf("keystore: unknown tenant %q", tenantID)
	}
	material, err := generateMaterial()
	if err != nil {
		return "", err
	}
	next := t.ActiveVersion + 1
	t.Versions[strconv.Itoa(next)] = material
	t.ActiveVersion = next
	if err := k.persist(); err != nil {
		return "", err
	}
	return keyRef(next), nil
}

// ActiveRef returns the active key reference for a tenant.
func (k *Keystore) ActiveRef(tenantID string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tenants[tenantID]
	if !ok {
		return "", fmt.Errorf("keystore: unknown tenant %q", tenantID)
	}
	return keyRef(t.ActiveVersion), nil
}

// Signer returns a signer for the tenant's key reference.
func (k *Keystore) Signer(tenantID, ref string) (*Signer, error) {
	m, err := k.material(tenantID, ref)
	if err != nil {
		return nil, err
	}
	seed, err := base64.StdEncoding.DecodeString(m.SignSeed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keystore: corrupt signing seed for %s/%s", tenantID, ref)
	}
	return NewSigner(ref, ed25519.NewKeyFromSeed(seed)), nil
}

// ResolveVerifyKey implements KeyResolver.
func (k *Keystore) ResolveVerifyKey(_ context.Context, tenantID, ref string) (ed25519.PublicKey, error) {
	s, err := k.Signer(tenantID, ref)
	if err != nil {
		return nil, err
	}
	return s.Public(), nil
}

// ResolveSecret implements KeyResolver.
func (k *Keystore) ResolveSecret(_ context.Context, tenantID, ref string) ([]byte, error) {
	m, err := k.material(tenantID, ref)
	if err != nil {
		return nil, err
	}
	secret, err := base64.StdEncoding.DecodeString(m.Secret)
	if err != nil || len(secret) != 32 {
		return nil, fmt.Errorf("keystore: corrupt secret for %s/%s", tenantID, ref)
	}
	return secret, nil
}

func (k *Keystore) material(tenantID, ref string) (keyMaterial, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	t, ok := k.tenants[tenantID]
	if !ok {
		return keyMaterial{}, fmt.Errorf("keystore: unknown tenant %q", tenantID)
	}
	version, err := parseRef(ref)
	if err != nil {
		return keyMaterial{}, err
	}
	m, ok := t.Versions[strconv.Itoa(version)]
	if !ok {
		return keyMaterial{}, fmt.Errorf("keystore: unknown key version %q for tenant %q", ref, tenantID)
	}
	return m, nil
}

func (k *Keystore) persist() error {
	data, err := json.MarshalIndent(k.tenants, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("keystore: write: %w", err)
	}
	return nil
}

func keyRef(version int) string { return "v" + strconv.Itoa(version) }

func parseRef(ref string) (int, error) {
	if !strings.HasPrefix(ref, "v") {
		return 0, fmt.Errorf("keystore: malformed key ref %q", ref)
	}
	v, err := strconv.Atoi(ref[1:])
	if err != nil {
		return 0, fmt.Errorf("keystore: malformed key ref %q", ref)
	}
	return v, nil
}

func generateMaterial() (keyMaterial, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return keyMaterial{}, fmt.Errorf("keystore: generate secret: %w", err)
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return keyMaterial{}, fmt.Errorf("keystore: generate seed: %w", err)
	}
	return keyMaterial{
		Secret:   base64.StdEncoding.EncodeToString(secret),
		SignSeed: base64.StdEncoding.EncodeToString(seed),
	}, nil
}
