// Package state implements the world State and deterministic
// state-transition function (STF) of spec §4.D: the five SMTs (history,
// coins, transactions, pools, stakes) plus the scalars that together seal
// to a Header. A State is mutated in-memory through an overlay (dolthub's
// swiss hash map, the teacher's in-flight-map library) during a single
// height's batch of transactions, and only materialized into the SMTs
// (and their new roots) when Seal is called — this is the "lazily
// materializes the modified subset" design the spec calls for without
// paying an O(log N) SMT write per transaction.
package state

import (
	"context"

	"github.com/dolthub/swiss"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/stores/cas"
	"github.com/themelio-labs/themelio-core/stores/smt"
)

// overlayEntry distinguishes "not yet touched, defer to the SMT root"
// from "explicitly deleted" — the zero value of V alone can't, since a
// legitimate value can be the map's zero value too.
type overlayEntry[V any] struct {
	value   V
	deleted bool
}

// State is one height's mutable world view. The zero value is not valid;
// build one with NextState or Genesis.
type State struct {
	CAS cas.Store

	Network       model.NetworkID
	Height        model.BlockHeight
	FeePool       model.CoinValue
	FeeMultiplier uint64
	DoscSpeed     uint64

	HistoryRoot      crypto.Hash
	CoinsRoot        crypto.Hash
	TransactionsRoot crypto.Hash
	PoolsRoot        crypto.Hash
	StakesRoot       crypto.Hash

	coins        *swiss.Map[model.CoinID, overlayEntry[*model.CoinDataHeight]]
	transactions *swiss.Map[model.HashVal, overlayEntry[*model.Transaction]]
	pools        *swiss.Map[model.Denom, overlayEntry[*model.PoolState]]
	stakes       *swiss.Map[model.HashVal, overlayEntry[*model.StakeDoc]]
	history      []pendingHistoryEntry
}

type pendingHistoryEntry struct {
	height model.BlockHeight
	header *model.Header
}

func newOverlays() (
	*swiss.Map[model.CoinID, overlayEntry[*model.CoinDataHeight]],
	*swiss.Map[model.HashVal, overlayEntry[*model.Transaction]],
	*swiss.Map[model.Denom, overlayEntry[*model.PoolState]],
	*swiss.Map[model.HashVal, overlayEntry[*model.StakeDoc]],
) {
	return swiss.NewMap[model.CoinID, overlayEntry[*model.CoinDataHeight]](16),
		swiss.NewMap[model.HashVal, overlayEntry[*model.Transaction]](16),
		swiss.NewMap[model.Denom, overlayEntry[*model.PoolState]](4),
		swiss.NewMap[model.HashVal, overlayEntry[*model.StakeDoc]](4)
}

// NextState produces a fresh mutable State for height+1 that inherits the
// five SMT roots but clears the transactions SMT (spec §3: "next_state()
// clears it").
func (s *State) NextState() *State {
	coins, _, pools, stakes := newOverlays()
	_, txs, _, _ := newOverlays()

	return &State{
		CAS:              s.CAS,
		Network:          s.Network,
		Height:           s.Height + 1,
		FeePool:          s.FeePool,
		FeeMultiplier:    s.FeeMultiplier,
		DoscSpeed:        s.DoscSpeed,
		HistoryRoot:      s.HistoryRoot,
		CoinsRoot:        s.CoinsRoot,
		TransactionsRoot: smt.EmptyRoot,
		PoolsRoot:        s.PoolsRoot,
		StakesRoot:       s.StakesRoot,
		coins:            coins,
		transactions:     txs,
		pools:            pools,
		stakes:           stakes,
	}
}

// CoinKeyBytes is the coins-SMT key for id, exported so sync's
// GetSmtBranch can address the same key the STF writes under.
func CoinKeyBytes(id model.CoinID) []byte {
	return append(append([]byte{}, id.TxHash[:]...), id.Index)
}

// GetCoin looks up a coin, checking the overlay before falling back to
// the coins SMT.
func (s *State) GetCoin(ctx context.Context, id model.CoinID) (*model.CoinDataHeight, error) {
	if e, ok := s.coins.Get(id); ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	raw, _, err := smt.Get(ctx, s.CAS, s.CoinsRoot, CoinKeyBytes(id))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var cdh model.CoinDataHeight
	if err := stdcode.Unmarshal(raw, &cdh); err != nil {
		return nil, err
	}
	return &cdh, nil
}

func (s *State) SetCoin(id model.CoinID, cdh *model.CoinDataHeight) {
	s.coins.Put(id, overlayEntry[*model.CoinDataHeight]{value: cdh})
}

func (s *State) DeleteCoin(id model.CoinID) {
	s.coins.Put(id, overlayEntry[*model.CoinDataHeight]{deleted: true})
}

// GetTransaction looks up a transaction included at this (still-live)
// height.
func (s *State) GetTransaction(ctx context.Context, hash model.HashVal) (*model.Transaction, error) {
	if e, ok := s.transactions.Get(hash); ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	raw, _, err := smt.Get(ctx, s.CAS, s.TransactionsRoot, hash[:])
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var tx model.Transaction
	if err := stdcode.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *State) InsertTransaction(hash model.HashVal, tx *model.Transaction) {
	s.transactions.Put(hash, overlayEntry[*model.Transaction]{value: tx})
}

// GetPool looks up a Melswap pool by denom.
func (s *State) GetPool(ctx context.Context, denom model.Denom) (*model.PoolState, error) {
	if e, ok := s.pools.Get(denom); ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	keyBytes := DenomKeyBytes(denom)
	raw, _, err := smt.Get(ctx, s.CAS, s.PoolsRoot, keyBytes)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var p model.PoolState
	if err := stdcode.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *State) SetPool(denom model.Denom, p *model.PoolState) {
	s.pools.Put(denom, overlayEntry[*model.PoolState]{value: p})
}

// GetStake looks up a StakeDoc by the hash of the staking transaction.
func (s *State) GetStake(ctx context.Context, txHash model.HashVal) (*model.StakeDoc, error) {
	if e, ok := s.stakes.Get(txHash); ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	raw, _, err := smt.Get(ctx, s.CAS, s.StakesRoot, txHash[:])
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var doc model.StakeDoc
	if err := stdcode.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *State) SetStake(txHash model.HashVal, doc *model.StakeDoc) {
	s.stakes.Put(txHash, overlayEntry[*model.StakeDoc]{value: doc})
}

// AllActiveStakes materializes every stake currently visible (overlay +
// SMT) into a map, for voting-power computation. Only called once per
// consensus round, never per-transaction, since it walks the whole SMT.
func (s *State) AllActiveStakes(ctx context.Context) (map[model.HashVal]*model.StakeDoc, error) {
	out := make(map[model.HashVal]*model.StakeDoc)
	err := smt.Walk(ctx, s.CAS, s.StakesRoot, func(key, value []byte) error {
		var doc model.StakeDoc
		if err := stdcode.Unmarshal(value, &doc); err != nil {
			return err
		}
		out[crypto.HashFromBytes(key)] = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.stakes.Iter(func(k model.HashVal, e overlayEntry[*model.StakeDoc]) bool {
		if e.deleted {
			delete(out, k)
		} else {
			out[k] = e.value
		}
		return false
	})
	return out, nil
}

// DenomKeyBytes is the pools-SMT key for d.
func DenomKeyBytes(d model.Denom) []byte {
	b := []byte{byte(d.Kind)}
	return append(b, d.Custom[:]...)
}
