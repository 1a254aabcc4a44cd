package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/ulogger"
)

func testBlock(height model.BlockHeight) *model.Block {
	return &model.Block{
		Header: model.Header{Network: model.NetworkTestnet, Height: height},
		Transactions: []model.Transaction{{
			Kind:    model.TxFaucet,
			Outputs: []model.CoinData{{Denom: model.Mel(), Value: model.NewCoinValue(1)}},
		}},
	}
}

func TestInsertAndGetBlockRoundTrip(t *testing.T) {
	store, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)

	block := testBlock(5)
	proof := model.ConsensusProof{"pk": []byte("sig")}

	require.NoError(t, store.InsertBlock(context.Background(), 5, block, proof))

	gotBlock, gotProof, err := store.GetBlock(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, block.Header.Height, gotBlock.Header.Height)
	assert.Equal(t, proof, gotProof)
}

func TestGetBlockNotFound(t *testing.T) {
	store, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)

	_, _, err = store.GetBlock(context.Background(), 99)
	assert.Error(t, err)
}

func TestFlushPersistsHighestAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	store, err := New(ulogger.TestLogger(), dir)
	require.NoError(t, err)

	for h := model.BlockHeight(0); h <= 3; h++ {
		require.NoError(t, store.InsertBlock(context.Background(), h, testBlock(h), nil))
	}
	require.NoError(t, store.Flush(context.Background()))

	reopened, err := New(ulogger.TestLogger(), dir)
	require.NoError(t, err)
	height, have := reopened.Highest()
	assert.True(t, have)
	assert.Equal(t, model.BlockHeight(3), height)
}

func TestHighestReflectsUnflushedInserts(t *testing.T) {
	store, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)

	_, have := store.Highest()
	assert.False(t, have)

	require.NoError(t, store.InsertBlock(context.Background(), 10, testBlock(10), nil))
	height, have := store.Highest()
	assert.True(t, have)
	assert.Equal(t, model.BlockHeight(10), height)
}

func TestFlushIsIdempotentWithNoNewInserts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	store, err := New(ulogger.TestLogger(), dir)
	require.NoError(t, err)

	require.NoError(t, store.InsertBlock(context.Background(), 0, testBlock(0), nil))
	require.NoError(t, store.Flush(context.Background()))
	require.NoError(t, store.Flush(context.Background()))

	height, have := store.Highest()
	assert.True(t, have)
	assert.Equal(t, model.BlockHeight(0), height)
}

func TestConsensusProofRoundTripsThroughRecord(t *testing.T) {
	pub, sk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	sig := crypto.Sign(sk, []byte("header-hash"))

	store, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)

	proof := model.ConsensusProof{string(pub): sig}
	require.NoError(t, store.InsertBlock(context.Background(), 1, testBlock(1), proof))

	_, gotProof, err := store.GetBlock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, proof, gotProof)
}
