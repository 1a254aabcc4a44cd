package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/model"
)

func mustCV(x uint64) model.CoinValue { return model.NewCoinValue(x) }

func TestDepositSeedsEmptyPool(t *testing.T) {
	pool, liqs := Deposit(&model.PoolState{}, mustCV(1_000_000_000), mustCV(1_000_000_000))
	assert.Equal(t, mustCV(1_000_000_000), pool.Mels)
	assert.Equal(t, mustCV(1_000_000_000), pool.Tokens)
	assert.Equal(t, mustCV(1_000_000_000), pool.Liqs)
	assert.Equal(t, mustCV(1_000_000_000), liqs)
}

func TestDepositOnNonEmptyPoolMintsProportionalLiquidity(t *testing.T) {
	pool := &model.PoolState{Mels: mustCV(1000), Tokens: mustCV(1000), Liqs: mustCV(1000)}
	next, deltaL := Deposit(pool, mustCV(1000), mustCV(1000))
	assert.Equal(t, mustCV(2000), next.Mels)
	assert.Equal(t, mustCV(2000), next.Tokens)
	assert.Equal(t, mustCV(1000), deltaL)
	assert.Equal(t, mustCV(2000), next.Liqs)
}

func TestSwapSpecExample(t *testing.T) {
	// spec test vector: pool (1e9 mels, 1e9 tokens), swap 1e6 mels in,
	// expect token payout floored to 995e6/1001 within unit error.
	pool := &model.PoolState{Mels: mustCV(1_000_000_000), Tokens: mustCV(1_000_000_000), Liqs: mustCV(1_000_000_000)}
	next, melOut, tokenOut, err := Swap(pool, mustCV(1_000_000), model.CoinValue{})
	require.NoError(t, err)
	assert.True(t, melOut.IsZero())

	expected := int64(995_000_000) / 1001
	got := tokenOut.BigInt().Int64()
	assert.InDelta(t, expected, got, 1)
	assert.Equal(t, pool.Liqs, next.Liqs, "swap must not change liqs")
}

func TestSwapRejectsEmptyPool(t *testing.T) {
	_, _, _, err := Swap(&model.PoolState{}, mustCV(1), model.CoinValue{})
	require.Error(t, err)
}

func TestWithdrawPartialIsProportional(t *testing.T) {
	pool := &model.PoolState{Mels: mustCV(1000), Tokens: mustCV(2000), Liqs: mustCV(1000)}
	next, melOut, tokenOut, err := Withdraw(pool, mustCV(500))
	require.NoError(t, err)
	assert.Equal(t, mustCV(500), melOut)
	assert.Equal(t, mustCV(1000), tokenOut)
	assert.Equal(t, mustCV(500), next.Mels)
	assert.Equal(t, mustCV(1000), next.Tokens)
	assert.Equal(t, mustCV(500), next.Liqs)
}

func TestWithdrawAllDrainsPoolToZero(t *testing.T) {
	pool := &model.PoolState{Mels: mustCV(1000), Tokens: mustCV(2000), Liqs: mustCV(1000)}
	next, _, _, err := Withdraw(pool, mustCV(1000))
	require.NoError(t, err)
	assert.True(t, next.Mels.IsZero())
	assert.True(t, next.Tokens.IsZero())
	assert.True(t, next.Liqs.IsZero())
}

func TestWithdrawRejectsMoreThanOutstanding(t *testing.T) {
	pool := &model.PoolState{Mels: mustCV(1000), Tokens: mustCV(1000), Liqs: mustCV(1000)}
	_, _, _, err := Withdraw(pool, mustCV(1001))
	require.Error(t, err)
}
