package state

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stores/cas"
)

// genesisTxHash anchors every genesis coin's CoinID.TxHash: genesis coins
// are not created by any real transaction, so they're keyed off a fixed
// domain-tagged hash instead of a hash_nosigs() that doesn't exist.
var genesisTxHash = crypto.Keyed("genesis-coin")

// GenesisConfig is the bootstrap document spec §6 names: "{network,
// init_coindata, init_fee_pool, init_fee_multiplier, stakes: map<TxHash,
// StakeDoc>}". InitCoindata is a flat list rather than a map, each
// entry's CoinID synthesized as (genesisTxHash, index) — the spec leaves
// the indexing scheme for initial coins unspecified, and a list is the
// natural YAML/JSON shape for "a handful of initial UTXOs."
type GenesisConfig struct {
	Network           model.NetworkID                  `yaml:"network" json:"network"`
	InitCoindata      []model.CoinData                 `yaml:"init_coindata" json:"init_coindata"`
	InitFeePool       model.CoinValue                   `yaml:"init_fee_pool" json:"init_fee_pool"`
	InitFeeMultiplier uint64                            `yaml:"init_fee_multiplier" json:"init_fee_multiplier"`
	Stakes            map[model.HashVal]model.StakeDoc  `yaml:"stakes" json:"stakes"`
}

// LoadGenesisConfigYAML parses a staker/genesis YAML document (spec §6:
// "Genesis config (JSON/YAML)"); yaml.v3 accepts well-formed JSON as a
// YAML subset, so this also covers the JSON encoding without a second
// parser.
func LoadGenesisConfigYAML(raw []byte) (*GenesisConfig, error) {
	var cfg GenesisConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.New(errors.ErrConfiguration, "malformed genesis config", err)
	}
	return &cfg, nil
}

// Genesis builds height-0's SealedState from cfg: every init_coindata
// entry is inserted as a coin, every stake is inserted directly (bypassing
// apply_tx, since there is no genesis transaction to authorize it), and
// the header is sealed with a nil ProposerAction (spec §4.D.5: "present
// on every non-genesis sealed state").
func Genesis(ctx context.Context, store cas.Store, cfg *GenesisConfig) (*SealedState, error) {
	s := &State{
		CAS:           store,
		Network:       cfg.Network,
		Height:        0,
		FeePool:       cfg.InitFeePool,
		FeeMultiplier: cfg.InitFeeMultiplier,
		DoscSpeed:     GenesisDoscSpeed,
		HistoryRoot:   crypto.ZeroHash,
		CoinsRoot:     crypto.ZeroHash,
		PoolsRoot:     crypto.ZeroHash,
		StakesRoot:    crypto.ZeroHash,
	}
	s.coins, s.transactions, s.pools, s.stakes = newOverlays()
	s.TransactionsRoot = crypto.ZeroHash

	for i, cd := range cfg.InitCoindata {
		id := model.CoinID{TxHash: genesisTxHash, Index: uint8(i)}
		s.SetCoin(id, &model.CoinDataHeight{CoinData: cd, HeightCreated: 0})
	}
	for txHash, doc := range cfg.Stakes {
		doc := doc
		s.SetStake(txHash, &doc)
	}

	return Seal(ctx, s, crypto.ZeroHash, nil, nil, 0)
}
