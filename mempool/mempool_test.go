package mempool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/stores/cas/memory"
)

func newTestBase(t *testing.T) *state.State {
	t.Helper()
	ctx := context.Background()
	casStore := memory.New()
	genesis, err := state.Genesis(ctx, casStore, &state.GenesisConfig{Network: model.NetworkTestnet, InitFeeMultiplier: 1})
	require.NoError(t, err)
	return genesis.State.NextState()
}

func faucetTx(value uint64) *model.Transaction {
	return &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Covhash: crypto.Keyed(crypto.DomainCoinID, []byte("dest")), Denom: model.Mel(), Value: model.NewCoinValue(value)}},
	}
}

func TestNewRejectsBaseWithNonEmptyTransactionsRoot(t *testing.T) {
	ctx := context.Background()
	casStore := memory.New()
	genesis, err := state.Genesis(ctx, casStore, &state.GenesisConfig{Network: model.NetworkTestnet, InitFeeMultiplier: 1})
	require.NoError(t, err)

	_, err = New(genesis.State)
	assert.Error(t, err)
}

func TestApplyTransactionAcceptsWellFormedTx(t *testing.T) {
	mp, err := New(newTestBase(t))
	require.NoError(t, err)

	tx := faucetTx(100)
	require.NoError(t, mp.ApplyTransaction(context.Background(), tx))

	pending := mp.PendingTransactions()
	require.Len(t, pending, 1)
	assert.Equal(t, tx.HashNoSigs(), pending[0])
}

func TestApplyTransactionRejectsDuplicate(t *testing.T) {
	mp, err := New(newTestBase(t))
	require.NoError(t, err)

	tx := faucetTx(100)
	require.NoError(t, mp.ApplyTransaction(context.Background(), tx))
	err = mp.ApplyTransaction(context.Background(), tx)
	assert.Error(t, err)
}

func TestApplyTransactionRejectsOverCapacity(t *testing.T) {
	mp, err := New(newTestBase(t))
	require.NoError(t, err)

	for i := 0; i < MaxPending; i++ {
		tx := &model.Transaction{
			Kind: model.TxFaucet,
			Outputs: []model.CoinData{{
				Covhash: crypto.Keyed(crypto.DomainCoinID, []byte{byte(i)}),
				Denom:   model.Mel(),
				Value:   model.NewCoinValue(uint64(i + 1)),
			}},
		}
		require.NoError(t, mp.ApplyTransaction(context.Background(), tx))
	}

	overflow := faucetTx(999)
	err = mp.ApplyTransaction(context.Background(), overflow)
	assert.Error(t, err)
}

func TestRebaseRejectsNonForwardHeight(t *testing.T) {
	base := newTestBase(t)
	mp, err := New(base)
	require.NoError(t, err)

	err = mp.Rebase(base)
	assert.Error(t, err)
}

func TestRebaseDiscardsPendingTransactions(t *testing.T) {
	base := newTestBase(t)
	mp, err := New(base)
	require.NoError(t, err)

	tx := faucetTx(50)
	require.NoError(t, mp.ApplyTransaction(context.Background(), tx))
	require.Len(t, mp.PendingTransactions(), 1)

	newBase := base.NextState()
	require.NoError(t, mp.Rebase(newBase))

	assert.Empty(t, mp.PendingTransactions())
	assert.Equal(t, newBase.Height, mp.ProvisionalState().Height)
}

func TestLookupRecentTxSurvivesRebase(t *testing.T) {
	base := newTestBase(t)
	mp, err := New(base)
	require.NoError(t, err)

	tx := faucetTx(50)
	require.NoError(t, mp.ApplyTransaction(context.Background(), tx))

	newBase := base.NextState()
	require.NoError(t, mp.Rebase(newBase))

	got, ok := mp.LookupRecentTx(tx.HashNoSigs())
	require.True(t, ok)
	assert.Equal(t, tx.HashNoSigs(), got.HashNoSigs())
}

func TestLookupRecentTxMissReturnsFalse(t *testing.T) {
	mp, err := New(newTestBase(t))
	require.NoError(t, err)

	_, ok := mp.LookupRecentTx(crypto.Keyed(crypto.DomainCoinID, []byte("nope")))
	assert.False(t, ok)
}
