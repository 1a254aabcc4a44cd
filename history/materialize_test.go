package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/stores/cas/memory"
	"github.com/themelio-labs/themelio-core/ulogger"
)

func sealHeight1(t *testing.T, ctx context.Context, casStore *memory.Memory, genesis *state.SealedState) (*state.SealedState, *model.Block) {
	t.Helper()

	working := genesis.State.NextState()
	faucetTx := &model.Transaction{
		Kind:    model.TxFaucet,
		Outputs: []model.CoinData{{Covhash: crypto.Keyed(crypto.DomainCoinID, []byte("dest")), Denom: model.Mel(), Value: model.NewCoinValue(1000)}},
	}
	require.NoError(t, working.ApplyTxBatch(ctx, []*model.Transaction{faucetTx}))

	action := &model.ProposerAction{FeeMultiplierDelta: 0, RewardDest: crypto.Keyed(crypto.DomainCoinID, []byte("proposer"))}
	sealed, err := state.Seal(ctx, working, genesis.Header.Hash(), genesis.Header, action, state.TotalDoscWork([]*model.Transaction{faucetTx}))
	require.NoError(t, err)

	block := &model.Block{
		Header:         *sealed.Header,
		Transactions:   []model.Transaction{*faucetTx},
		ProposerAction: action,
	}
	return sealed, block
}

func TestMaterializeReplaysStoredBlocksFromGenesis(t *testing.T) {
	ctx := context.Background()
	casStore := memory.New()
	genesisCfg := &state.GenesisConfig{Network: model.NetworkTestnet, InitFeeMultiplier: 1}

	genesis, err := state.Genesis(ctx, casStore, genesisCfg)
	require.NoError(t, err)

	sealed1, block1 := sealHeight1(t, ctx, casStore, genesis)

	historyStore, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	require.NoError(t, historyStore.InsertBlock(ctx, 1, block1, nil))
	require.NoError(t, historyStore.Flush(ctx))

	result, err := historyStore.Materialize(ctx, casStore, genesisCfg, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BlockHeight(1), result.Header.Height)
	assert.Equal(t, sealed1.Header.Hash(), result.Header.Hash())
}

func TestMaterializeWithNoStoredBlocksReturnsGenesis(t *testing.T) {
	ctx := context.Background()
	casStore := memory.New()
	genesisCfg := &state.GenesisConfig{Network: model.NetworkTestnet, InitFeeMultiplier: 1}

	historyStore, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)

	result, err := historyStore.Materialize(ctx, casStore, genesisCfg, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BlockHeight(0), result.Header.Height)
}

func TestMaterializeResumesFromCache(t *testing.T) {
	ctx := context.Background()
	casStore := memory.New()
	genesisCfg := &state.GenesisConfig{Network: model.NetworkTestnet, InitFeeMultiplier: 1}

	genesis, err := state.Genesis(ctx, casStore, genesisCfg)
	require.NoError(t, err)
	sealed1, block1 := sealHeight1(t, ctx, casStore, genesis)

	historyStore, err := New(ulogger.TestLogger(), filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	require.NoError(t, historyStore.InsertBlock(ctx, 1, block1, nil))
	require.NoError(t, historyStore.Flush(ctx))

	cache := NewCache()
	cache.Put(1, sealed1)

	result, err := historyStore.Materialize(ctx, casStore, genesisCfg, cache)
	require.NoError(t, err)
	assert.Equal(t, sealed1.Header.Hash(), result.Header.Hash())
}
