package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
)

func TestCacheGetMissReturnsFalse(t *testing.T) {
	cache := NewCache()
	_, ok := cache.Get(42)
	assert.False(t, ok)
}

func TestCachePutThenGet(t *testing.T) {
	cache := NewCache()
	sealed := &state.SealedState{Header: &model.Header{Height: 3}}
	cache.Put(3, sealed)

	got, ok := cache.Get(3)
	assert.True(t, ok)
	assert.Equal(t, sealed, got)
}

func TestCacheLatestTracksHighestHeight(t *testing.T) {
	cache := NewCache()
	_, _, ok := cache.Latest()
	assert.False(t, ok)

	cache.Put(1, &state.SealedState{Header: &model.Header{Height: 1}})
	cache.Put(5, &state.SealedState{Header: &model.Header{Height: 5}})
	cache.Put(3, &state.SealedState{Header: &model.Header{Height: 3}})

	latest, height, ok := cache.Latest()
	assert.True(t, ok)
	assert.Equal(t, model.BlockHeight(5), height)
	assert.Equal(t, model.BlockHeight(5), latest.Header.Height)
}
