package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
)

func TestInsertThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	m := New()

	hash, err := m.Insert(ctx, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, crypto.Plain([]byte("hello world")), hash)

	got, err := m.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func TestInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := New()

	h1, err := m.Insert(ctx, []byte("x"))
	require.NoError(t, err)
	h2, err := m.Insert(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	m := New()

	_, err := m.Get(ctx, crypto.Plain([]byte("never inserted")))
	assert.Error(t, err)
}

func TestPutStoresUnderExplicitHash(t *testing.T) {
	ctx := context.Background()
	m := New()

	explicit := crypto.Keyed(crypto.DomainSMTNode, []byte("left"), []byte("right"))
	require.NoError(t, m.Put(ctx, explicit, []byte("node-bytes")))

	got, err := m.Get(ctx, explicit)
	require.NoError(t, err)
	assert.Equal(t, []byte("node-bytes"), got)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	m := New()

	hash, err := m.Insert(ctx, []byte("present"))
	require.NoError(t, err)

	ok, err := m.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Exists(ctx, crypto.Plain([]byte("absent")))
	require.NoError(t, err)
	assert.False(t, ok)
}
