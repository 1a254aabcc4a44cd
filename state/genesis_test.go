package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stores/cas/memory"
)

func TestLoadGenesisConfigYAML(t *testing.T) {
	raw := []byte(`
network: 1
init_fee_pool: "0"
init_fee_multiplier: 10
init_coindata:
  - covhash: "0000000000000000000000000000000000000000000000000000000000000001"
    denom:
      kind: 0
    value: "1000000"
stakes: {}
`)
	cfg, err := LoadGenesisConfigYAML(raw)
	require.NoError(t, err)
	assert.Equal(t, model.NetworkTestnet, cfg.Network)
	assert.Equal(t, uint64(10), cfg.InitFeeMultiplier)
	require.Len(t, cfg.InitCoindata, 1)
	assert.Equal(t, mustCV(1_000_000), cfg.InitCoindata[0].Value)
	assert.Equal(t, model.Mel(), cfg.InitCoindata[0].Denom)
}

func TestGenesisSealsHeightZero(t *testing.T) {
	cfg := &GenesisConfig{
		Network:           model.NetworkTestnet,
		InitFeeMultiplier: 1,
		InitCoindata: []model.CoinData{
			{Covhash: crypto.Plain([]byte("alice")), Denom: model.Mel(), Value: mustCV(1_000_000)},
		},
	}
	sealed, err := Genesis(context.Background(), memory.New(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.BlockHeight(0), sealed.Header.Height)
	assert.Nil(t, sealed.Action)

	coin, err := sealed.State.GetCoin(context.Background(), model.CoinID{TxHash: genesisTxHash, Index: 0})
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, mustCV(1_000_000), coin.CoinData.Value)
}
