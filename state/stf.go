// Package state's STF (state-transition function) lives across this
// file (single-tx application and batching) and melswap.go/dosc.go
// (the kind-specific arithmetic), per spec §4.D.
package state

import (
	"context"

	"github.com/dolthub/swiss"

	"github.com/themelio-labs/themelio-core/covenant"
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// reservedStakeCovhash is the well-known, unspendable covhash a Stake
// transaction must lock its Sym collateral output to (spec §4.D.2: "the
// total Sym output locked to a reserved 'stake' covhash"). No covenant
// program's content hash can ever equal it, since it is derived from a
// domain tag rather than any program's bytecode, so staked Sym can never
// be spent directly — only ever unwound by the stake's own expiry.
var reservedStakeCovhash = crypto.Keyed(crypto.DomainStakeReserved)

func coinAuthorized(tx *model.Transaction, covhash model.Address) bool {
	for _, program := range tx.Covenants {
		if covenant.Hash(program) == covhash {
			return covenant.Eval(program, &covenant.Context{Tx: tx})
		}
	}
	return false
}

func sumByDenom(denom model.Denom, value model.CoinValue, into map[model.Denom]model.CoinValue) {
	into[denom] = into[denom].Add(value)
}

func sumInputs(coins []*model.CoinDataHeight) map[model.Denom]model.CoinValue {
	out := make(map[model.Denom]model.CoinValue)
	for _, c := range coins {
		sumByDenom(c.CoinData.Denom, c.CoinData.Value, out)
	}
	return out
}

func sumOutputs(outputs []model.CoinData) map[model.Denom]model.CoinValue {
	out := make(map[model.Denom]model.CoinValue)
	for _, o := range outputs {
		sumByDenom(o.Denom, o.Value, out)
	}
	return out
}

// checkNormalBalance enforces spec §4.D.2 step 5's Normal rule: for every
// denom, Σinputs == Σoutputs. A NewCoin-marked output bucket is exempt —
// minting a fresh custom denom has no corresponding input by
// construction (spec §3: "mints a new custom denom whose id equals the
// minting tx's hash").
func checkNormalBalance(inTotals, outTotals map[model.Denom]model.CoinValue) error {
	for d, out := range outTotals {
		if d.Kind == model.DenomNewCoin {
			continue
		}
		in := inTotals[d]
		if in.Cmp(out) != 0 {
			return errors.New(errors.ErrBadKind, "denom mismatch: inputs %s != outputs %s", in, out)
		}
	}
	for d, in := range inTotals {
		if d.Kind == model.DenomNewCoin {
			continue
		}
		if _, ok := outTotals[d]; !ok && !in.IsZero() {
			return errors.New(errors.ErrBadKind, "input value %s has no matching output", in)
		}
	}
	return nil
}

// resolvedDenom maps a NewCoin-marker output onto the real Custom denom
// it mints once the mint is applied.
func resolvedDenom(d model.Denom, txHash model.HashVal) model.Denom {
	if d.Kind == model.DenomNewCoin {
		return model.CustomDenom(txHash)
	}
	return d
}

// nonMelNonSymDenom returns the sole Custom denom present among totals,
// or an error if there isn't exactly one — used by Swap/LiqDeposit/
// LiqWithdraw to infer which pool a tx concerns from the denoms it moves;
// tx.Data is not consulted.
func nonMelNonSymDenom(totals map[model.Denom]model.CoinValue) (model.Denom, error) {
	var found model.Denom
	count := 0
	for d, v := range totals {
		if v.IsZero() {
			continue
		}
		if d.Kind == model.DenomMel || d.Kind == model.DenomSym {
			continue
		}
		found = d
		count++
	}
	if count != 1 {
		return model.Denom{}, errors.New(errors.ErrBadMelswap, "transaction must deposit exactly one non-mel denom, found %d", count)
	}
	return found, nil
}

// ApplyTx applies tx against s, following spec §4.D.2's eight steps.
// Callers must discard s (rather than retry on the same *State) if this
// returns an error: steps already performed are not rolled back.
func (s *State) ApplyTx(ctx context.Context, tx *model.Transaction) error {
	if err := tx.WellFormed(); err != nil {
		return err
	}

	hash := tx.HashNoSigs()

	// 1. Reject duplicates.
	if existing, err := s.GetTransaction(ctx, hash); err != nil {
		return err
	} else if existing != nil {
		return errors.New(errors.ErrDuplicateTx, "tx %s already applied", hash)
	}

	// 2/3. Look up every input coin and check its covenant.
	inputCoins := make([]*model.CoinDataHeight, len(tx.Inputs))
	for i, id := range tx.Inputs {
		cdh, err := s.GetCoin(ctx, id)
		if err != nil {
			return err
		}
		if cdh == nil {
			return errors.New(errors.ErrNonexistentCoin, "input %d does not exist", i)
		}
		if !coinAuthorized(tx, cdh.CoinData.Covhash) {
			return errors.New(errors.ErrViolatesScript, "input %d's covenant did not authorize the spend", i)
		}
		inputCoins[i] = cdh
	}

	// 4. Sum inputs/outputs per denom. rawOutTotals is exactly tx.Outputs;
	// outTotals additionally counts the fee as a Mel output, which is what
	// the Normal/Stake balance rule (inputs == outputs) needs to hold.
	inTotals := sumInputs(inputCoins)
	rawOutTotals := sumOutputs(tx.Outputs)
	outTotals := sumOutputs(tx.Outputs)
	sumByDenom(model.Mel(), tx.Fee, outTotals)

	// 5. Balance rule by kind.
	switch tx.Kind {
	case model.TxNormal:
		if err := checkNormalBalance(inTotals, outTotals); err != nil {
			return err
		}

	case model.TxFaucet:
		if s.Network == model.NetworkMainnet {
			return errors.New(errors.ErrWrongNetwork, "Faucet transactions are not valid on mainnet")
		}

	case model.TxStake:
		if err := checkNormalBalance(inTotals, outTotals); err != nil {
			return err
		}
		var doc model.StakeDoc
		if err := stdcode.Unmarshal(tx.Data, &doc); err != nil {
			return errors.New(errors.ErrBadKind, "Stake data does not decode to a StakeDoc", err)
		}
		var lockedSym model.CoinValue
		for _, o := range tx.Outputs {
			if o.Denom.Kind == model.DenomSym && o.Covhash == reservedStakeCovhash {
				lockedSym = lockedSym.Add(o.Value)
			}
		}
		if doc.SymsStaked.Cmp(lockedSym) != 0 {
			return errors.New(errors.ErrBadKind, "StakeDoc.SymsStaked %s does not match locked Sym output %s", doc.SymsStaked, lockedSym)
		}
		s.SetStake(hash, &doc)

	case model.TxDoscMint:
		var parentCoinHash crypto.Hash
		if len(tx.Inputs) > 0 {
			parentCoinHash = inputCoins[0].CoinData.Covhash
		}
		if _, err := VerifyDoscMint(tx, parentCoinHash, s.DoscSpeed); err != nil {
			return err
		}

	case model.TxSwap:
		// A token-in swap names the pool on the input side; a Mel-in swap
		// names it only on the output side.
		denom, err := nonMelNonSymDenom(inTotals)
		if err != nil {
			if denom, err = nonMelNonSymDenom(rawOutTotals); err != nil {
				return err
			}
		}
		pool, err := s.GetPool(ctx, denom)
		if err != nil {
			return err
		}
		if pool == nil || pool.IsEmpty() {
			return errors.New(errors.ErrBadMelswap, "no pool for denom %s", denom)
		}
		next, melOut, tokenOut, err := Swap(pool, inTotals[model.Mel()], inTotals[denom])
		if err != nil {
			return err
		}
		if rawOutTotals[model.Mel()].Cmp(melOut) != 0 || rawOutTotals[denom].Cmp(tokenOut) != 0 {
			return errors.New(errors.ErrBadMelswap, "swap output does not match the AMM formula")
		}
		s.SetPool(denom, next)

	case model.TxLiqDeposit:
		if len(tx.Outputs) != 2 {
			return errors.New(errors.ErrBadKind, "LiqDeposit must have exactly two outputs")
		}
		denom, err := nonMelNonSymDenom(inTotals)
		if err != nil {
			return err
		}
		pool, err := s.GetPool(ctx, denom)
		if err != nil {
			return err
		}
		next, liqMinted := Deposit(pool, inTotals[model.Mel()], inTotals[denom])
		liqDenom := model.PoolLiqDenom(denom)
		if tx.Outputs[0].Denom != liqDenom || tx.Outputs[0].Value.Cmp(liqMinted) != 0 {
			return errors.New(errors.ErrBadMelswap, "LiqDeposit output[0] does not match minted liquidity")
		}
		s.SetPool(denom, next)

	case model.TxLiqWithdraw:
		denom, err := nonMelNonSymDenom(outTotals)
		if err != nil {
			return err
		}
		liqDenom := model.PoolLiqDenom(denom)
		liqsIn := inTotals[liqDenom]
		pool, err := s.GetPool(ctx, denom)
		if err != nil {
			return err
		}
		if pool == nil {
			return errors.New(errors.ErrBadMelswap, "no pool for denom %s", denom)
		}
		next, melOut, tokenOut, err := Withdraw(pool, liqsIn)
		if err != nil {
			return err
		}
		if rawOutTotals[model.Mel()].Cmp(melOut) != 0 || rawOutTotals[denom].Cmp(tokenOut) != 0 {
			return errors.New(errors.ErrBadMelswap, "withdraw output does not match the AMM formula")
		}
		s.SetPool(denom, next)
	}

	// 6. Remove all input coins; insert all output coins at this height.
	for _, id := range tx.Inputs {
		s.DeleteCoin(id)
	}
	for i, o := range tx.Outputs {
		o.Denom = resolvedDenom(o.Denom, hash)
		s.SetCoin(model.CoinID{TxHash: hash, Index: uint8(i)}, &model.CoinDataHeight{
			CoinData:      o,
			HeightCreated: s.Height,
		})
	}

	// 7. Insert tx into transactions.
	s.InsertTransaction(hash, tx)

	// 8. Add fee to fee_pool.
	s.FeePool = s.FeePool.Add(tx.Fee)

	return nil
}

// ApplyTxBatch applies every tx in txs to s. Per spec §4.D.4, application
// order within independent dependency classes must not affect the
// result; sequential application in the caller's given order already
// satisfies that as long as no later tx in the slice spends an earlier
// one's output before it's inserted, which every real topological
// ordering (including "as received") guarantees. On any failure s is
// left untouched by cloning the overlay maps up front and only
// committing them into s if every tx succeeds.
func (s *State) ApplyTxBatch(ctx context.Context, txs []*model.Transaction) error {
	snapshot := s.cloneOverlays()

	for i, tx := range txs {
		if err := s.ApplyTx(ctx, tx); err != nil {
			s.restoreOverlays(snapshot)
			return errors.New(errors.ErrBadKind, "tx %d rejected", i, err)
		}
	}
	return nil
}

// stfSnapshot holds a shallow copy of every overlay ApplyTx can mutate,
// restored wholesale if a batch member fails partway through.
type stfSnapshot struct {
	coins        *swiss.Map[model.CoinID, overlayEntry[*model.CoinDataHeight]]
	transactions *swiss.Map[model.HashVal, overlayEntry[*model.Transaction]]
	pools        *swiss.Map[model.Denom, overlayEntry[*model.PoolState]]
	stakes       *swiss.Map[model.HashVal, overlayEntry[*model.StakeDoc]]
	feePool      model.CoinValue
}

func (s *State) cloneOverlays() stfSnapshot {
	coins := swiss.NewMap[model.CoinID, overlayEntry[*model.CoinDataHeight]](16)
	s.coins.Iter(func(k model.CoinID, v overlayEntry[*model.CoinDataHeight]) bool {
		coins.Put(k, v)
		return false
	})

	transactions := swiss.NewMap[model.HashVal, overlayEntry[*model.Transaction]](16)
	s.transactions.Iter(func(k model.HashVal, v overlayEntry[*model.Transaction]) bool {
		transactions.Put(k, v)
		return false
	})

	pools := swiss.NewMap[model.Denom, overlayEntry[*model.PoolState]](4)
	s.pools.Iter(func(k model.Denom, v overlayEntry[*model.PoolState]) bool {
		pools.Put(k, v)
		return false
	})

	stakes := swiss.NewMap[model.HashVal, overlayEntry[*model.StakeDoc]](4)
	s.stakes.Iter(func(k model.HashVal, v overlayEntry[*model.StakeDoc]) bool {
		stakes.Put(k, v)
		return false
	})

	return stfSnapshot{coins: coins, transactions: transactions, pools: pools, stakes: stakes, feePool: s.FeePool}
}

func (s *State) restoreOverlays(snap stfSnapshot) {
	s.coins = snap.coins
	s.transactions = snap.transactions
	s.pools = snap.pools
	s.stakes = snap.stakes
	s.FeePool = snap.feePool
}
