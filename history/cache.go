package history

import (
	"github.com/jellydator/ttlcache/v3"

	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
)

// defaultCacheCapacity bounds how many recent SealedStates Cache holds
// before evicting the least-recently-used entry.
const defaultCacheCapacity = 64

// Cache is the "bounded LRU caches recent SealedStates to avoid
// re-materialization" of spec §4.E, grounded on the teacher's own use of
// jellydator/ttlcache for exactly this kind of process-local memoization
// (services/blockvalidation/Server.go's processSubtreeNotify). Entries
// never expire by age here — only by capacity — since staleness isn't
// the concern; re-derivability is.
type Cache struct {
	items *ttlcache.Cache[model.BlockHeight, *state.SealedState]
}

func NewCache() *Cache {
	return &Cache{
		items: ttlcache.New[model.BlockHeight, *state.SealedState](
			ttlcache.WithCapacity[model.BlockHeight, *state.SealedState](defaultCacheCapacity),
		),
	}
}

func (c *Cache) Put(height model.BlockHeight, sealed *state.SealedState) {
	c.items.Set(height, sealed, ttlcache.NoTTL)
}

func (c *Cache) Get(height model.BlockHeight) (*state.SealedState, bool) {
	item := c.items.Get(height)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Latest returns the highest-height SealedState currently cached, which
// Materialize uses as its replay starting point in place of genesis.
func (c *Cache) Latest() (*state.SealedState, model.BlockHeight, bool) {
	var best *state.SealedState
	var bestHeight model.BlockHeight
	found := false
	for _, item := range c.items.Items() {
		if !found || item.Key() > bestHeight {
			bestHeight = item.Key()
			best = item.Value()
			found = true
		}
	}
	return best, bestHeight, found
}
