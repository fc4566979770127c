package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-labs/uep/pkg/contracts"
)

func testRegistry() *Registry {
	dir := NewMemoryDirectory()
	dir.Register(&Target{
		Key:          "models/summarizer",
		Subsystem:    "mlpipe",
		Endpoint:     "grpc://mlpipe.internal:9443",
		Version:      "2.3.1",
		Capabilities: []string{"summarize", "stream-output"},
	})
	r := NewRegistry()
	r.RegisterSubsystem("mlpipe", dir)
	return r
}

func dest(routingKey string, mutate func(*contracts.DestinationCard)) *contracts.DestinationCard {
	d := &contracts.DestinationCard{
		ID:         "models/summarizer",
		Type:       contracts.PrincipalModel,
		RoutingKey: routingKey,
	}
	if mutate != nil {
		mutate(d)
	}
	return d
}

func TestResolveByResourcePath(t *testing.T) {
	r := testRegistry()
	res, err := r.Resolve(context.Background(), dest("mlpipe://models/summarizer", func(d *contracts.DestinationCard) {
		d.Priority = 3
		d.TTLSeconds = 30
		d.Expectation = contracts.ExpectPayload
	}))
	require.NoError(t, err)
	assert.Equal(t, "grpc://mlpipe.internal:9443", res.Target.Endpoint)
	assert.Equal(t, 3, res.Priority)
	assert.Equal(t, 30, res.TTLSeconds)
	assert.Equal(t, contracts.ExpectPayload, res.Expectation)
}

func TestResolveRegistryRefOverridesPath(t *testing.T) {
	r := testRegistry()
	res, err := r.Resolve(context.Background(), dest("mlpipe://ignored/path", func(d *contracts.DestinationCard) {
		d.RegistryRef = &contracts.RegistryRef{LookupKey: "models/summarizer"}
	}))
	require.NoError(t, err)
	assert.Equal(t, "models/summarizer", res.Target.Key)
}

func TestResolveUnknownPrefix(t *testing.T) {
	r := testRegistry()
	_, err := r.Resolve(context.Background(), dest("nosuch://models/summarizer", nil))

	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeUnknownPrefix, rerr.Code)
	// The offending prefix is named so the producer can fix its card.
	assert.Equal(t, "nosuch", rerr.Prefix)
	assert.Contains(t, rerr.Message, "nosuch")
}

func TestResolveMalformedRoutingKey(t *testing.T) {
	r := testRegistry()
	for _, key := range []string{"mlpipe://", "://models/x"} {
		_, err := r.Resolve(context.Background(), dest(key, nil))
		assertRouteCode(t, err, CodeMalformedAddress)
	}

	// A card with neither routing key nor id cannot be resolved at all.
	_, err := r.Resolve(context.Background(), dest("", func(d *contracts.DestinationCard) {
		d.ID = ""
	}))
	assertRouteCode(t, err, CodeMalformedAddress)
}

func TestResolveBareID(t *testing.T) {
	r := testRegistry()

	// Without a default directory a bare id surfaces the miss.
	_, err := r.Resolve(context.Background(), dest("models/summarizer", nil))
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeUnknownPrefix, rerr.Code)
	assert.Equal(t, "models/summarizer", rerr.LookupKey)

	dir := NewMemoryDirectory()
	dir.Register(&Target{Key: "models/summarizer", Endpoint: "grpc://default.internal:9443", Version: "1.0.0"})
	r.RegisterDefault(dir)

	res, err := r.Resolve(context.Background(), dest("models/summarizer", nil))
	require.NoError(t, err)
	assert.Equal(t, "grpc://default.internal:9443", res.Target.Endpoint)

	// An empty routing key falls back to the card's id.
	res, err = r.Resolve(context.Background(), dest("", nil))
	require.NoError(t, err)
	assert.Equal(t, "models/summarizer", res.Target.Key)

	// The registry ref still overrides the bare id as the lookup key.
	_, err = r.Resolve(context.Background(), dest("models/summarizer", func(d *contracts.DestinationCard) {
		d.RegistryRef = &contracts.RegistryRef{LookupKey: "models/other"}
	}))
	assertRouteCode(t, err, CodeTargetNotFound)
}

func TestResolveTargetNotFound(t *testing.T) {
	r := testRegistry()
	_, err := r.Resolve(context.Background(), dest("mlpipe://models/translator", nil))

	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeTargetNotFound, rerr.Code)
	assert.Equal(t, "models/translator", rerr.LookupKey)
}

func TestResolveCapabilityGate(t *testing.T) {
	r := testRegistry()

	_, err := r.Resolve(context.Background(), dest("mlpipe://models/summarizer", func(d *contracts.DestinationCard) {
		d.Capabilities = []string{"summarize", "stream-output"}
	}))
	assert.NoError(t, err)

	_, err = r.Resolve(context.Background(), dest("mlpipe://models/summarizer", func(d *contracts.DestinationCard) {
		d.Capabilities = []string{"summarize", "translate"}
	}))
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeCapabilityMismatch, rerr.Code)
	assert.Contains(t, rerr.Message, "translate")
}

func TestResolveVersionGate(t *testing.T) {
	r := testRegistry()

	for _, constraint := range []string{"2.3.1", "^2.0", "~2.3", ">=2.0 <3.0"} {
		_, err := r.Resolve(context.Background(), dest("mlpipe://models/summarizer", func(d *contracts.DestinationCard) {
			d.Version = constraint
		}))
		assert.NoError(t, err, "constraint %q", constraint)
	}

	for _, constraint := range []string{"^3.0", "1.x", "not-a-version"} {
		_, err := r.Resolve(context.Background(), dest("mlpipe://models/summarizer", func(d *contracts.DestinationCard) {
			d.Version = constraint
		}))
		assertRouteCode(t, err, CodeVersionMismatch)
	}
}

func TestResolveNilDestination(t *testing.T) {
	r := testRegistry()
	_, err := r.Resolve(context.Background(), nil)
	assertRouteCode(t, err, CodeMalformedAddress)
}

type flakyDirectory struct {
	inner    Directory
	failures int
}

func (d *flakyDirectory) Lookup(ctx context.Context, key string) (*Target, error) {
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("backend briefly unavailable")
	}
	return d.inner.Lookup(ctx, key)
}

func TestResolveRetriesTransientBackendFailure(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Register(&Target{Key: "models/summarizer", Version: "1.0.0"})
	r := NewRegistry()
	r.RegisterSubsystem("mlpipe", &flakyDirectory{inner: dir, failures: 2})

	res, err := r.Resolve(context.Background(), dest("mlpipe://models/summarizer", nil))
	require.NoError(t, err)
	assert.Equal(t, "models/summarizer", res.Target.Key)
}

func assertRouteCode(t *testing.T, err error, code string) {
	t.Helper()
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, code, rerr.Code)
}
