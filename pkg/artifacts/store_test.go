package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("the quick brown fox")
	hash, err := s.Store(ctx, data)
	require.NoError(t, err)
	assert.Contains(t, hash, "sha256:")

	// Idempotent re-store
	again, err := s.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := s.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreGetRange(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := s.Store(ctx, []byte("0123456789"))
	require.NoError(t, err)

	mid, err := s.GetRange(ctx, hash, ByteRange{Offset: 2, Length: 4})
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), mid)

	tail, err := s.GetRange(ctx, hash, ByteRange{Offset: 7})
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), tail)
}

func TestFileStoreMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "sha256:abcdef")
	assert.Error(t, err)

	_, err = s.Get(ctx, "not-a-hash")
	assert.Error(t, err)
}

func TestUploadMintsReference(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := Upload(ctx, s, []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, RefScheme, ref.Protocol)
	assert.True(t, ref.RangeSupported)

	hash, err := HashFromReference(ref)
	require.NoError(t, err)

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)
}
