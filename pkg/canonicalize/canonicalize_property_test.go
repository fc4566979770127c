//go:build property
// +build property

// Package canonicalize_test contains property-based tests for canonical
// JSON determinism and hash stability.
package canonicalize_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/radiant-labs/uep/pkg/canonicalize"
)

// TestCanonicalDeterminism verifies canonical serialization is a pure
// function of the value.
// Property: Canonical(obj) == Canonical(obj) for any obj
func TestCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical form is deterministic", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}

			a, err1 := canonicalize.Canonical(obj)
			b, err2 := canonicalize.Canonical(obj)
			if err1 != nil && err2 != nil {
				return true
			}
			if err1 != nil || err2 != nil {
				return false
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestCanonicalHashKeyOrderIndependence verifies the canonical hash
// ignores insertion order.
// Property: CanonicalHash({a,b,c}) is the same however the map is built
func TestCanonicalHashKeyOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is independent of construction order", prop.ForAll(
		func(a, b, c string) bool {
			forward := map[string]any{"a": a, "b": b, "c": c}
			reverse := map[string]any{}
			reverse["c"] = c
			reverse["b"] = b
			reverse["a"] = a

			h1, err1 := canonicalize.CanonicalHash(canonicalize.AlgSHA256, forward)
			h2, err2 := canonicalize.CanonicalHash(canonicalize.AlgSHA256, reverse)
			if err1 != nil || err2 != nil {
				return false
			}
			return h1 == h2
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestHashAlgorithmsDiffer verifies the two digest algorithms never
// collide on identical input (they are distinct functions).
func TestHashAlgorithmsDiffer(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("sha-256 and blake2b-256 digests differ", prop.ForAll(
		func(data string) bool {
			sha, err1 := canonicalize.Hash(canonicalize.AlgSHA256, []byte(data))
			blake, err2 := canonicalize.Hash(canonicalize.AlgBLAKE2b256, []byte(data))
			if err1 != nil || err2 != nil {
				return false
			}
			return sha != blake
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
