package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
)

func TestSealMaterializesAppliedTransactions(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	tx := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Denom: model.Mel(), Value: mustCV(1000)}},
	}
	require.NoError(t, s.ApplyTx(context.Background(), tx))

	sealed, err := Seal(context.Background(), s, crypto.Hash{}, nil, nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, crypto.Hash{}, sealed.Header.CoinsHash)
	assert.NotEqual(t, crypto.Hash{}, sealed.Header.TransactionsHash)

	minted, err := sealed.State.GetCoin(context.Background(), model.CoinID{TxHash: tx.HashNoSigs(), Index: 0})
	require.NoError(t, err)
	require.NotNil(t, minted)
	assert.Equal(t, mustCV(1000), minted.CoinData.Value)
}

func TestSealCreditsProposerRewardAndResidualFeePool(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	s.FeePool = mustCV(1_000_000)
	rewardDest := crypto.Plain([]byte("proposer"))

	action := &model.ProposerAction{FeeMultiplierDelta: 1, RewardDest: rewardDest}
	sealed, err := Seal(context.Background(), s, crypto.Hash{}, nil, action, 0)
	require.NoError(t, err)

	require.True(t, sealed.Header.FeePool.Cmp(mustCV(1_000_000)) < 0, "fee pool must shrink by the reward credited")
	assert.Equal(t, s.FeeMultiplier+1, sealed.Header.FeeMultiplier)

	rewardCoin, err := sealed.State.GetCoin(context.Background(), model.ProposerRewardCoinID(s.Height))
	require.NoError(t, err)
	require.NotNil(t, rewardCoin)
	assert.Equal(t, rewardDest, rewardCoin.CoinData.Covhash)
	assert.False(t, rewardCoin.CoinData.Value.IsZero())
}

func TestSealRecordsPreviousHeaderIntoHistory(t *testing.T) {
	s := newTestState(t, model.NetworkTestnet)
	prevHeader := &model.Header{Network: model.NetworkTestnet, Height: 0}
	action := &model.ProposerAction{RewardDest: crypto.Plain([]byte("x"))}

	sealed, err := Seal(context.Background(), s, prevHeader.Hash(), prevHeader, action, 0)
	require.NoError(t, err)
	assert.NotEqual(t, crypto.ZeroHash, sealed.Header.HistoryHash)
}

func TestClampFeeMultiplierBoundedByOne(t *testing.T) {
	assert.Equal(t, uint64(6), clampFeeMultiplier(5, 1))
	assert.Equal(t, uint64(4), clampFeeMultiplier(5, -1))
	assert.Equal(t, uint64(0), clampFeeMultiplier(0, -1))
	assert.Equal(t, uint64(5), clampFeeMultiplier(5, 0))
}

func TestBaseRewardNeverZero(t *testing.T) {
	assert.False(t, BaseReward(1_000_000_000_000).IsZero())
}
