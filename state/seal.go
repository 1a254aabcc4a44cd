package state

import (
	"context"
	"math/big"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/stores/smt"
)

// feeRewardShift implements the "fee_pool / 2^14" term of the proposer
// reward formula (spec §4.D.5).
const feeRewardShift = 14

// baseRewardGenesis anchors BaseReward's scale: the Mel reward per block
// at GenesisDoscSpeed, before any DOSC-inflation-driven shrinkage.
const baseRewardGenesis = 1 << 20

// BaseReward is the "base_reward scales with DOSC inflation (floor 1)"
// term of the proposer reward formula: it shrinks in lockstep with
// DoscInflator as proving speed rises, anchoring total Mel emission to
// the same real-time clock DOSC measures, and never drops below 1.
func BaseReward(doscSpeed uint64) model.CoinValue {
	inflator := DoscInflator(doscSpeed)
	scaled := new(big.Int).Mul(big.NewInt(baseRewardGenesis), inflator.Num())
	scaled.Div(scaled, inflator.Denom())
	if scaled.Sign() <= 0 {
		return model.NewCoinValue(1)
	}
	v := model.CoinValueFromBigInt(scaled)
	if v.IsZero() {
		return model.NewCoinValue(1)
	}
	return v
}

// SealedState is a materialized State plus the ProposerAction that sealed
// it (nil only for genesis), hashing deterministically to a Header.
type SealedState struct {
	State  *State
	Action *model.ProposerAction
	Header *model.Header
}

// Seal computes the next Header by flushing s's four overlays into their
// SMTs, applying the fee/reward/dosc_speed policy, and recording
// previousHeader into history, per spec §4.D.5. action is nil only for
// the genesis seal.
func Seal(ctx context.Context, s *State, previousHash model.HashVal, previousHeader *model.Header, action *model.ProposerAction, blockDoscWork uint64) (*SealedState, error) {
	coinsRoot, err := materializeCoins(ctx, s)
	if err != nil {
		return nil, err
	}
	txsRoot, err := materializeTransactions(ctx, s)
	if err != nil {
		return nil, err
	}
	poolsRoot, err := materializePools(ctx, s)
	if err != nil {
		return nil, err
	}
	stakesRoot, err := materializeStakes(ctx, s)
	if err != nil {
		return nil, err
	}
	historyRoot := s.HistoryRoot

	feePool := s.FeePool
	feeMultiplier := s.FeeMultiplier
	doscSpeed := UpdateDoscSpeed(s.DoscSpeed, blockDoscWork)

	if action != nil {
		reward := proposerReward(feePool, doscSpeed)
		residual, _ := feePool.Sub(reward)
		feePool = residual

		rewardID := model.ProposerRewardCoinID(s.Height)
		rewardCoin := &model.CoinDataHeight{
			CoinData: model.CoinData{
				Covhash: action.RewardDest,
				Denom:   model.Mel(),
				Value:   reward,
			},
			HeightCreated: s.Height,
		}
		coinsRoot, err = smt.Set(ctx, s.CAS, coinsRoot, CoinKeyBytes(rewardID), stdcode.Marshal(rewardCoin))
		if err != nil {
			return nil, err
		}

		feeMultiplier = clampFeeMultiplier(feeMultiplier, action.FeeMultiplierDelta)

		if previousHeader != nil {
			raw := stdcode.Marshal(previousHeader)
			historyRoot, err = smt.Set(ctx, s.CAS, historyRoot, HistoryKeyBytes(s.Height-1), raw)
			if err != nil {
				return nil, err
			}
		}
	}

	header := &model.Header{
		Network:          s.Network,
		Previous:         previousHash,
		Height:           s.Height,
		HistoryHash:      historyRoot,
		CoinsHash:        coinsRoot,
		TransactionsHash: txsRoot,
		FeePool:          feePool,
		FeeMultiplier:    feeMultiplier,
		DoscSpeed:        doscSpeed,
		PoolsHash:        poolsRoot,
		StakesHash:       stakesRoot,
	}

	sealed := &State{
		CAS:              s.CAS,
		Network:          s.Network,
		Height:           s.Height,
		FeePool:          feePool,
		FeeMultiplier:    feeMultiplier,
		DoscSpeed:        doscSpeed,
		HistoryRoot:      historyRoot,
		CoinsRoot:        coinsRoot,
		TransactionsRoot: txsRoot,
		PoolsRoot:        poolsRoot,
		StakesRoot:       stakesRoot,
	}
	sealed.coins, sealed.transactions, sealed.pools, sealed.stakes = newOverlays()

	return &SealedState{State: sealed, Action: action, Header: header}, nil
}

// proposerReward computes min(fee_pool, fee_pool/2^14 + base_reward).
func proposerReward(feePool model.CoinValue, doscSpeed uint64) model.CoinValue {
	share := feePool.BigInt()
	share.Rsh(share, feeRewardShift)
	candidate := model.CoinValueFromBigInt(share).Add(BaseReward(doscSpeed))
	if candidate.Cmp(feePool) > 0 {
		return feePool
	}
	return candidate
}

// clampFeeMultiplier nudges fee_multiplier by at most ±1 toward the
// direction action.FeeMultiplierDelta indicates (spec §4.D.5: "bounded
// by ±1 per block").
func clampFeeMultiplier(current uint64, delta int8) uint64 {
	switch {
	case delta > 0:
		return current + 1
	case delta < 0:
		if current == 0 {
			return 0
		}
		return current - 1
	default:
		return current
	}
}

// HistoryKeyBytes is the history-SMT key for height h.
func HistoryKeyBytes(h model.BlockHeight) []byte {
	w := stdcode.NewWriter()
	w.Uvarint(uint64(h))
	return w.Bytes()
}

// materializeCoins/materializeTransactions/materializePools/materializeStakes
// flush one overlay's pending Put/Delete entries into its SMT, returning
// the new root. Transactions always start from smt.EmptyRoot (spec §3:
// "next_state() clears it").

func materializeCoins(ctx context.Context, s *State) (crypto.Hash, error) {
	root := s.CoinsRoot
	var err error
	s.coins.Iter(func(id model.CoinID, e overlayEntry[*model.CoinDataHeight]) bool {
		key := CoinKeyBytes(id)
		var value []byte
		if !e.deleted {
			value = stdcode.Marshal(e.value)
		}
		root, err = smt.Set(ctx, s.CAS, root, key, value)
		return err != nil
	})
	return root, err
}

func materializeTransactions(ctx context.Context, s *State) (crypto.Hash, error) {
	root := smt.EmptyRoot
	var err error
	s.transactions.Iter(func(hash model.HashVal, e overlayEntry[*model.Transaction]) bool {
		var value []byte
		if !e.deleted {
			value = stdcode.Marshal(e.value)
		}
		root, err = smt.Set(ctx, s.CAS, root, hash[:], value)
		return err != nil
	})
	return root, err
}

func materializePools(ctx context.Context, s *State) (crypto.Hash, error) {
	root := s.PoolsRoot
	var err error
	s.pools.Iter(func(denom model.Denom, e overlayEntry[*model.PoolState]) bool {
		key := DenomKeyBytes(denom)
		var value []byte
		if !e.deleted {
			value = stdcode.Marshal(e.value)
		}
		root, err = smt.Set(ctx, s.CAS, root, key, value)
		return err != nil
	})
	return root, err
}

func materializeStakes(ctx context.Context, s *State) (crypto.Hash, error) {
	root := s.StakesRoot
	var err error
	s.stakes.Iter(func(hash model.HashVal, e overlayEntry[*model.StakeDoc]) bool {
		var value []byte
		if !e.deleted {
			value = stdcode.Marshal(e.value)
		}
		root, err = smt.Set(ctx, s.CAS, root, hash[:], value)
		return err != nil
	})
	return root, err
}
