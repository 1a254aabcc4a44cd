package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/covenant"
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/stores/cas/memory"
	"github.com/themelio-labs/themelio-core/stores/smt"
)

func newTestState(t *testing.T, network model.NetworkID) *State {
	t.Helper()
	coins, txs, pools, stakes := newOverlays()
	return &State{
		CAS:              memory.New(),
		Network:          network,
		Height:           1,
		TransactionsRoot: smt.EmptyRoot,
		CoinsRoot:        smt.EmptyRoot,
		PoolsRoot:        smt.EmptyRoot,
		StakesRoot:       smt.EmptyRoot,
		HistoryRoot:      smt.EmptyRoot,
		coins:            coins,
		transactions:     txs,
		pools:            pools,
		stakes:           stakes,
	}
}

// unlockAll is a covenant program that authorizes any spend: a coin locked
// to covenant.Hash(unlockAll) is spendable by a tx that carries it.
var unlockAll = []byte{byte(covenant.OpTrue)}

// genesisCoin seeds a spendable coin directly into the overlay, as if it
// had been created by some prior, already-sealed height.
func genesisCoin(s *State, covhash model.Address, denom model.Denom, value model.CoinValue) model.CoinID {
	id := model.CoinID{TxHash: crypto.Plain([]byte("genesis")), Index: 0}
	s.SetCoin(id, &model.CoinDataHeight{
		CoinData: model.CoinData{Covhash: covhash, Denom: denom, Value: value},
	})
	return id
}

func TestApplyTxFaucetRejectedOnMainnet(t *testing.T) {
	s := newTestState(t, model.NetworkMainnet)
	tx := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(1000)}},
	}
	err := s.ApplyTx(context.Background(), tx)
	require.Error(t, err)
}

func TestApplyTxFaucetAcceptedOnTestnet(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	tx := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(1000)}},
	}
	err := s.ApplyTx(context.Background(), tx)
	require.NoError(t, err)

	hash := tx.HashNoSigs()
	cdh, err := s.GetCoin(context.Background(), model.CoinID{TxHash: hash, Index: 0})
	require.NoError(t, err)
	require.NotNil(t, cdh)
	assert.Equal(t, mustCV(1000), cdh.CoinData.Value)
}

func TestApplyTxNormalSpendsAndRebalances(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	covhash := covenant.Hash(unlockAll)
	input := genesisCoin(s, covhash, model.Mel(), mustCV(1000))

	tx := &model.Transaction{
		Kind:   model.TxNormal,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: covhash, Denom: model.Mel(), Value: mustCV(900)},
		},
		Fee:       mustCV(100),
		Covenants: [][]byte{unlockAll},
	}
	require.NoError(t, s.ApplyTx(context.Background(), tx))

	spent, err := s.GetCoin(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, spent, "spent input must be removed from the coin set")

	assert.Equal(t, mustCV(100), s.FeePool)
}

func TestApplyTxNormalRejectsUnbalancedOutputs(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	covhash := covenant.Hash(unlockAll)
	input := genesisCoin(s, covhash, model.Mel(), mustCV(1000))

	tx := &model.Transaction{
		Kind:   model.TxNormal,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: covhash, Denom: model.Mel(), Value: mustCV(1500)},
		},
		Covenants: [][]byte{unlockAll},
	}
	err := s.ApplyTx(context.Background(), tx)
	require.Error(t, err)
}

func TestApplyTxRejectsNonexistentInput(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	tx := &model.Transaction{
		Kind:   model.TxNormal,
		Inputs: []model.CoinID{{TxHash: crypto.Plain([]byte("nope"))}},
		Outputs: []model.CoinData{
			{Denom: model.Mel(), Value: mustCV(1)},
		},
	}
	err := s.ApplyTx(context.Background(), tx)
	require.Error(t, err)
}

func TestApplyTxRejectsDuplicate(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	tx := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(1)}},
	}
	require.NoError(t, s.ApplyTx(context.Background(), tx))
	err := s.ApplyTx(context.Background(), tx)
	require.Error(t, err)
}

func TestApplyTxNewCoinMintsCustomDenom(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	covhash := covenant.Hash(unlockAll)
	input := genesisCoin(s, covhash, model.Mel(), mustCV(1000))

	tx := &model.Transaction{
		Kind:   model.TxNormal,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: covhash, Denom: model.NewCoin(), Value: mustCV(1)},
			{Covhash: covhash, Denom: model.Mel(), Value: mustCV(1000)},
		},
		Covenants: [][]byte{unlockAll},
	}
	require.NoError(t, s.ApplyTx(context.Background(), tx))

	hash := tx.HashNoSigs()
	minted, err := s.GetCoin(context.Background(), model.CoinID{TxHash: hash, Index: 0})
	require.NoError(t, err)
	require.NotNil(t, minted)
	assert.Equal(t, model.CustomDenom(hash), minted.CoinData.Denom)
}

func TestApplyTxStakeValidatesLockedCollateral(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	input := genesisCoin(s, covenant.Hash(unlockAll), model.Sym(), mustCV(5000))

	doc := model.StakeDoc{Pubkey: make([]byte, 32), EStart: 0, EPostEnd: 10, SymsStaked: mustCV(5000)}
	tx := &model.Transaction{
		Kind:   model.TxStake,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: reservedStakeCovhash, Denom: model.Sym(), Value: mustCV(5000)},
		},
		Covenants: [][]byte{unlockAll},
		Data:      stdcode.Marshal(&doc),
	}
	require.NoError(t, s.ApplyTx(context.Background(), tx))

	got, err := s.GetStake(context.Background(), tx.HashNoSigs())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, mustCV(5000), got.SymsStaked)
}

func TestApplyTxStakeRejectsCollateralMismatch(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	input := genesisCoin(s, covenant.Hash(unlockAll), model.Sym(), mustCV(5000))

	doc := model.StakeDoc{Pubkey: make([]byte, 32), EStart: 0, EPostEnd: 10, SymsStaked: mustCV(9999)}
	tx := &model.Transaction{
		Kind:   model.TxStake,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: reservedStakeCovhash, Denom: model.Sym(), Value: mustCV(5000)},
		},
		Covenants: [][]byte{unlockAll},
		Data:      stdcode.Marshal(&doc),
	}
	err := s.ApplyTx(context.Background(), tx)
	require.Error(t, err)
}

func TestApplyTxSwapAgainstSeededPool(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	covhash := crypto.Plain([]byte("trader"))
	tokenDenom := model.CustomDenom(crypto.Plain([]byte("some-token")))

	s.SetPool(tokenDenom, &model.PoolState{
		Mels: mustCV(1_000_000_000), Tokens: mustCV(1_000_000_000), Liqs: mustCV(1_000_000_000),
	})
	input := genesisCoin(s, covenant.Hash(unlockAll), model.Mel(), mustCV(1_000_000))

	pool, err := s.GetPool(context.Background(), tokenDenom)
	require.NoError(t, err)
	_, _, tokenOut, err := Swap(pool, mustCV(1_000_000), model.CoinValue{})
	require.NoError(t, err)

	tx := &model.Transaction{
		Kind:   model.TxSwap,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: covhash, Denom: tokenDenom, Value: tokenOut},
		},
		Covenants: [][]byte{unlockAll},
	}
	require.NoError(t, s.ApplyTx(context.Background(), tx))

	after, err := s.GetPool(context.Background(), tokenDenom)
	require.NoError(t, err)
	assert.Equal(t, mustCV(1_000_000_000).Add(mustCV(1_000_000)), after.Mels)
}

func TestApplyTxBatchRollsBackOnFailure(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	covhash := crypto.Plain([]byte("owner"))
	input := genesisCoin(s, covhash, model.Mel(), mustCV(1000))

	good := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(1)}},
	}
	bad := &model.Transaction{
		Kind:   model.TxNormal,
		Inputs: []model.CoinID{input},
		Outputs: []model.CoinData{
			{Covhash: covhash, Denom: model.Mel(), Value: mustCV(999999)},
		},
	}

	err := s.ApplyTxBatch(context.Background(), []*model.Transaction{good, bad})
	require.Error(t, err)

	// The good tx's effects must not be visible after rollback.
	got, err := s.GetTransaction(context.Background(), good.HashNoSigs())
	require.NoError(t, err)
	assert.Nil(t, got)

	// The original input coin must still be spendable.
	cdh, err := s.GetCoin(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, cdh)
}

func TestApplyTxBatchCommitsAllOnSuccess(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	tx1 := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(1)}},
	}
	tx2 := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(2)}},
	}
	require.NoError(t, s.ApplyTxBatch(context.Background(), []*model.Transaction{tx1, tx2}))

	for _, tx := range []*model.Transaction{tx1, tx2} {
		got, err := s.GetTransaction(context.Background(), tx.HashNoSigs())
		require.NoError(t, err)
		assert.NotNil(t, got)
	}
}
