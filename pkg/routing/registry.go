package routing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v5"

	"github.com/radiant-labs/uep/pkg/contracts"
)

const (
	lookupMaxTries        = 3
	lookupInitialInterval = 50 * time.Millisecond
)

// ResolvedTarget is a successful resolution: the matched target plus
// the delivery hints carried through from the destination card.
type ResolvedTarget struct {
	Target      *Target
	Priority    int
	TTLSeconds  int
	Retry       *contracts.RetryPolicy
	Expectation contracts.ResponseExpectation
}

// Registry maps subsystem prefixes to their directories and resolves
// destination cards against them. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	subsystems map[string]Directory
	logger     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		subsystems: make(map[string]Directory),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSubsystem binds a directory to an address prefix. Registering
// an existing prefix replaces its directory.
func (r *Registry) RegisterSubsystem(prefix string, dir Directory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subsystems[prefix] = dir
}

// RegisterDefault binds the directory that serves routing keys carrying
// no subsystem prefix (bare target ids).
func (r *Registry) RegisterDefault(dir Directory) {
	r.RegisterSubsystem("", dir)
}

// Prefixes returns the registered subsystem prefixes.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subsystems))
	for p := range r.subsystems {
		out = append(out, p)
	}
	return out
}

// Resolve matches a destination card to a registered target. A prefixed
// routing key selects its subsystem; a bare routing key (or, when the
// key is empty, the card's id) goes to the default directory. The
// registry ref's lookup key, when present, overrides the resource path
// as the directory key. The match is gated on the card's required
// capabilities and version constraint.
func (r *Registry) Resolve(ctx context.Context, dest *contracts.DestinationCard) (*ResolvedTarget, error) {
	if dest == nil {
		return nil, routeErr(CodeMalformedAddress, "", "", "envelope has no destination")
	}
	routingKey := dest.RoutingKey
	if routingKey == "" {
		routingKey = dest.ID
	}
	if routingKey == "" {
		return nil, routeErr(CodeMalformedAddress, "", "",
			"destination carries neither routing key nor id")
	}

	var addr Address
	if strings.Contains(routingKey, "://") {
		var err error
		addr, err = ParseAddress(routingKey)
		if err != nil {
			return nil, err
		}
	} else {
		addr = Address{Resource: routingKey}
	}

	r.mu.RLock()
	dir, ok := r.subsystems[addr.Prefix]
	r.mu.RUnlock()
	if !ok {
		if addr.Prefix == "" {
			return nil, routeErr(CodeUnknownPrefix, "", addr.Resource,
				"no default directory registered for bare id %q", addr.Resource)
		}
		return nil, routeErr(CodeUnknownPrefix, addr.Prefix, "",
			"no subsystem registered for prefix %q", addr.Prefix)
	}

	key := addr.Resource
	if dest.RegistryRef != nil && dest.RegistryRef.LookupKey != "" {
		key = dest.RegistryRef.LookupKey
	}

	target, err := r.lookup(ctx, dir, key)
	if err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			return nil, routeErr(CodeTargetNotFound, addr.Prefix, key,
				"no target %q in subsystem %q", key, addr.Prefix)
		}
		return nil, err
	}

	if ok, missing := target.HasCapabilities(dest.Capabilities); !ok {
		return nil, routeErr(CodeCapabilityMismatch, addr.Prefix, key,
			"target %q lacks capabilities %v", key, missing)
	}

	if dest.Version != "" {
		if err := checkVersion(dest.Version, target.Version); err != nil {
			return nil, routeErr(CodeVersionMismatch, addr.Prefix, key,
				"target %q version %q: %v", key, target.Version, err)
		}
	}

	r.logger.DebugContext(ctx, "destination resolved",
		slog.String("prefix", addr.Prefix),
		slog.String("lookup_key", key),
		slog.String("endpoint", target.Endpoint))

	return &ResolvedTarget{
		Target:      target,
		Priority:    dest.Priority,
		TTLSeconds:  dest.TTLSeconds,
		Retry:       dest.Retry,
		Expectation: dest.Expectation,
	}, nil
}

// lookup queries the directory with bounded retries for transient
// backend failures. A definitive miss is not retried.
func (r *Registry) lookup(ctx context.Context, dir Directory, key string) (*Target, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = lookupInitialInterval

	return backoff.Retry(ctx, func() (*Target, error) {
		t, err := dir.Lookup(ctx, key)
		if errors.Is(err, ErrTargetNotFound) {
			return nil, backoff.Permanent(err)
		}
		return t, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(lookupMaxTries))
}

// checkVersion matches a target's version against the card's semver
// constraint. A bare version like "1.2.0" acts as an exact requirement.
func checkVersion(constraint, version string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.New("destination version constraint is not valid semver")
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.New("target version is not valid semver")
	}
	if !c.Check(v) {
		return errors.New("does not satisfy constraint " + constraint)
	}
	return nil
}
