// Package mempool is the provisional-state transaction pool of spec
// §4.F: a State derived from highest_sealed.next_state(), fed
// transactions ahead of consensus finalizing them into a real block.
package mempool

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/greatroar/blobloom"
	"github.com/jellydator/ttlcache/v3"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/stores/smt"
)

// MaxPending is the size cap spec §4.F names: "size-cap (≤100 txx at a
// time)".
const MaxPending = 100

// recentTxTTL bounds how long lookup_recent_tx keeps a hash answerable
// after it leaves the provisional state (e.g. once it lands in a
// finalized block and the mempool rebases past it).
const recentTxTTL = 10 * time.Minute

// bloomFPRate is the false-positive rate for the duplicate pre-check
// filter: one spurious fall-through to the exact map per million lookups,
// cheap enough to tolerate given the exact map always has the final say.
const bloomFPRate = 1e-6

// Mempool holds one provisional State plus the bookkeeping
// apply_transaction/rebase/lookup_recent_tx need. Per spec §4.F's
// concurrency note ("a single writer... and many readers"),
// ApplyTransaction and Rebase take the write lock; ProvisionalState and
// PendingTransactions take only the read lock. LookupRecentTx takes no
// lock and reads the internally synchronized recent-tx cache directly.
type Mempool struct {
	mu sync.RWMutex

	provisional *state.State
	pending     map[model.HashVal]struct{}
	order       []model.HashVal
	seen        *blobloom.Filter

	recent *ttlcache.Cache[model.HashVal, *model.Transaction]
}

// New builds a Mempool atop base, which MUST be a next_state() (its
// TransactionsRoot empty) per spec §4.F's rebase invariant.
func New(base *state.State) (*Mempool, error) {
	if base.TransactionsRoot != smt.EmptyRoot {
		return nil, errors.New(errors.ErrBadRequest, "mempool base must be a next_state with an empty transactions SMT")
	}

	recent := ttlcache.New[model.HashVal, *model.Transaction](
		ttlcache.WithTTL[model.HashVal, *model.Transaction](recentTxTTL),
		ttlcache.WithCapacity[model.HashVal, *model.Transaction](MaxPending * 4),
	)
	go recent.Start()

	return &Mempool{
		provisional: base,
		pending:     make(map[model.HashVal]struct{}),
		seen:        newSeenFilter(),
		recent:      recent,
	}, nil
}

func newSeenFilter() *blobloom.Filter {
	return blobloom.NewOptimized(blobloom.Config{Capacity: MaxPending, FPRate: bloomFPRate})
}

// bloomKey folds a 32-byte tx hash down to the uint64 blobloom.Filter
// keys on, the same truncate-to-first-8-bytes convention the teacher's
// own Block.NewOptimizedBloomFilter uses for tx-id membership testing.
func bloomKey(hash model.HashVal) uint64 {
	return binary.BigEndian.Uint64(hash[:8])
}

// ApplyTransaction enforces the size cap and duplicate check, then runs
// tx through the provisional state's STF (spec §4.F: "apply_transaction(tx):
// size-cap... and no-duplicate check, then provisional_state.apply_tx(tx)").
func (m *Mempool) ApplyTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) >= MaxPending {
		return errors.New(errors.ErrBadRequest, "mempool is full: %d transactions pending", MaxPending)
	}

	hash := tx.HashNoSigs()
	if m.seen.Has(bloomKey(hash)) {
		if _, ok := m.pending[hash]; ok {
			return errors.New(errors.ErrDuplicateTx, "tx %s already pending", hash)
		}
	}

	if err := m.provisional.ApplyTx(ctx, tx); err != nil {
		return err
	}

	m.seen.Add(bloomKey(hash))
	m.pending[hash] = struct{}{}
	m.order = append(m.order, hash)
	m.recent.Set(hash, tx, ttlcache.DefaultTTL)
	return nil
}

// Rebase discards every provisional transaction and moves the pool onto
// newBase. Per spec §4.F this is monotonic (newBase.Height must exceed
// the current base's) and newBase must itself be a fresh next_state.
func (m *Mempool) Rebase(newBase *state.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newBase.Height <= m.provisional.Height {
		return errors.New(errors.ErrBadRequest, "rebase height %d does not exceed current height %d", newBase.Height, m.provisional.Height)
	}
	if newBase.TransactionsRoot != smt.EmptyRoot {
		return errors.New(errors.ErrBadRequest, "rebase target must be a next_state with an empty transactions SMT")
	}

	m.provisional = newBase
	m.pending = make(map[model.HashVal]struct{})
	m.order = nil
	m.seen = newSeenFilter()
	return nil
}

// ProvisionalState returns the mempool's current provisional State for
// read-only use by RPC/block-proposal callers. Callers must not mutate
// it; Rebase may swap the pool onto a different State concurrently.
func (m *Mempool) ProvisionalState() *state.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provisional
}

// PendingTransactions returns the hashes of the transactions currently
// accepted into the provisional state, in application order — the natural candidate
// set for build_block (spec §4.G.1).
func (m *Mempool) PendingTransactions() []model.HashVal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.HashVal, len(m.order))
	copy(out, m.order)
	return out
}

// LookupRecentTx is the "best-effort cache for sync/RPC use" spec §4.F
// names: it answers for transactions that were pending recently, even
// after a Rebase discards them from the provisional state proper.
func (m *Mempool) LookupRecentTx(hash model.HashVal) (*model.Transaction, bool) {
	item := m.recent.Get(hash)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Close stops the background TTL-eviction loop.
func (m *Mempool) Close() {
	m.recent.Stop()
}
