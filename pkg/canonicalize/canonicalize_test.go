package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeysAndStripsWhitespace(t *testing.T) {
	out, err := CanonicalRaw([]byte(`{ "b": 1, "a": { "d": 2, "c": 3 } }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":3,"d":2},"b":1}`, string(out))
}

func TestCanonicalNoHTMLEscaping(t *testing.T) {
	out, err := Canonical(map[string]string{"q": "a<b&c>d"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a<b&c>d"}`, string(out))
}

func TestCanonicalDeterministicForStructs(t *testing.T) {
	type inner struct {
		Z string `json:"z"`
		A string `json:"a"`
	}
	v := inner{Z: "last", A: "first"}

	one, err := Canonical(v)
	require.NoError(t, err)
	two, err := Canonical(v)
	require.NoError(t, err)
	assert.Equal(t, one, two)
	assert.Equal(t, `{"a":"first","z":"last"}`, string(one))
}

func TestHashAlgorithms(t *testing.T) {
	data := []byte("envelope body")

	sha, err := Hash(AlgSHA256, data)
	require.NoError(t, err)
	assert.Len(t, sha, 64)

	blake, err := Hash(AlgBLAKE2b256, data)
	require.NoError(t, err)
	assert.Len(t, blake, 64)
	assert.NotEqual(t, sha, blake)

	// Empty algorithm defaults to SHA-256.
	def, err := Hash("", data)
	require.NoError(t, err)
	assert.Equal(t, sha, def)

	_, err = Hash("md5", data)
	assert.Error(t, err)
}

func TestNormalizeText(t *testing.T) {
	// U+00E9 (é) vs e + U+0301 (combining acute) must hash identically
	// after normalization.
	composed := []byte("caf\u00e9")
	decomposed := []byte("cafe\u0301")

	n1, err := NormalizeText(composed)
	require.NoError(t, err)
	n2, err := NormalizeText(decomposed)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	_, err = NormalizeText([]byte{0xff, 0xfe})
	assert.Error(t, err)
}

func TestCanonicalHash(t *testing.T) {
	h1, err := CanonicalHash(AlgSHA256, map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := CanonicalHash(AlgSHA256, map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
