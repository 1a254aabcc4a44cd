package smt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/stores/cas/memory"
)

func TestEmptyRootIsZero(t *testing.T) {
	assert.True(t, EmptyRoot.IsZero())
}

func TestSetThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	root, err := Set(ctx, store, EmptyRoot, []byte("key-a"), []byte("value-a"))
	require.NoError(t, err)

	value, proof, err := Get(ctx, store, root, []byte("key-a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value-a"), value)
	assert.True(t, VerifyProof(root, []byte("key-a"), []byte("value-a"), proof))
}

func TestGetAbsentKeyVerifiesNonMembership(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	root, err := Set(ctx, store, EmptyRoot, []byte("present"), []byte("v"))
	require.NoError(t, err)

	value, proof, err := Get(ctx, store, root, []byte("absent"))
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.True(t, VerifyProof(root, []byte("absent"), nil, proof))
}

func TestSettingEmptyValuePrunesKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	root, err := Set(ctx, store, EmptyRoot, []byte("only-key"), []byte("v"))
	require.NoError(t, err)
	assert.False(t, root.IsZero())

	root, err = Set(ctx, store, root, []byte("only-key"), nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyRoot, root, "deleting the last key must restore the empty root")
}

func TestOldRootStillReadableAfterSet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	root1, err := Set(ctx, store, EmptyRoot, []byte("k"), []byte("v1"))
	require.NoError(t, err)

	root2, err := Set(ctx, store, root1, []byte("k"), []byte("v2"))
	require.NoError(t, err)

	v1, _, err := Get(ctx, store, root1, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v1)

	v2, _, err := Get(ctx, store, root2, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v2)
}

func TestCompressedProofRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	root, err := Set(ctx, store, EmptyRoot, []byte("key-a"), []byte("value-a"))
	require.NoError(t, err)

	_, proof, err := Get(ctx, store, root, []byte("key-a"))
	require.NoError(t, err)

	compressed := proof.Compress()
	decompressed, err := compressed.Decompress()
	require.NoError(t, err)
	assert.Equal(t, proof, decompressed)

	roundTripped, err := CompressedProofFromBytes(compressed.Bytes())
	require.NoError(t, err)
	assert.Equal(t, compressed, roundTripped)
}

func TestWalkEnumeratesAllPairs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	entries := map[string]string{
		"alpha": "1",
		"beta":  "2",
		"gamma": "3",
	}

	root := EmptyRoot
	var err error
	for k, v := range entries {
		root, err = Set(ctx, store, root, []byte(k), []byte(v))
		require.NoError(t, err)
	}

	seen := make(map[string]string)
	require.NoError(t, Walk(ctx, store, root, func(key, value []byte) error {
		seen[string(key)] = string(value)
		return nil
	}))

	assert.Equal(t, entries, seen)
}

func TestMultipleKeysIndependentProofs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	root := EmptyRoot
	var err error
	keys := []string{"coin-1", "coin-2", "coin-3", "coin-4", "coin-5"}
	for _, k := range keys {
		root, err = Set(ctx, store, root, []byte(k), []byte("v-"+k))
		require.NoError(t, err)
	}

	for _, k := range keys {
		value, proof, err := Get(ctx, store, root, []byte(k))
		require.NoError(t, err)
		assert.Equal(t, []byte("v-"+k), value)
		assert.True(t, VerifyProof(root, []byte(k), value, proof))
	}
}
