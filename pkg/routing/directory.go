package routing

import (
	"context"
	"errors"
	"sync"
)

// ErrTargetNotFound is returned by Directory.Lookup when no target is
// registered under a key.
var ErrTargetNotFound = errors.New("routing target not found")

// Directory is a subsystem's target catalogue.
type Directory interface {
	Lookup(ctx context.Context, key string) (*Target, error)
}

// MemoryDirectory is an in-process Directory for static wiring and
// tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	targets map[string]*Target
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{targets: make(map[string]*Target)}
}

// Register adds or replaces a target under its key.
func (d *MemoryDirectory) Register(t *Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[t.Key] = t
}

// Deregister removes a target.
func (d *MemoryDirectory) Deregister(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, key)
}

func (d *MemoryDirectory) Lookup(_ context.Context, key string) (*Target, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.targets[key]
	if !ok {
		return nil, ErrTargetNotFound
	}
	out := *t
	return &out, nil
}
