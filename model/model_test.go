package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/stdcode"
)

func TestCoinValueSaturatingAdd(t *testing.T) {
	max := CoinValueFromBigInt(maxCoinValue)
	one := NewCoinValue(1)
	assert.Equal(t, max, max.Add(one), "addition past 2^128-1 must saturate, not wrap")
}

func TestCoinValueSubUnderflow(t *testing.T) {
	_, ok := NewCoinValue(1).Sub(NewCoinValue(2))
	assert.False(t, ok)
}

func TestCoinValueRoundTrip(t *testing.T) {
	v := CoinValueFromBigInt(new(big.Int).Lsh(big.NewInt(1), 100))
	w := stdcode.NewWriter()
	v.EncodeStd(w)

	var got CoinValue
	r := stdcode.NewReader(w.Bytes())
	require.NoError(t, got.DecodeStd(r))
	assert.Equal(t, v, got)
}

func TestDenomEqualAndRoundTrip(t *testing.T) {
	h := crypto.Keyed(crypto.DomainCoinID, []byte("token-a"))
	d := CustomDenom(h)

	w := stdcode.NewWriter()
	d.EncodeStd(w)
	var got Denom
	require.NoError(t, got.DecodeStd(stdcode.NewReader(w.Bytes())))
	assert.True(t, d.Equal(got))

	assert.False(t, Mel().Equal(Sym()))
}

func TestPoolLiqDenomCollisionFree(t *testing.T) {
	tokenA := CustomDenom(crypto.Keyed(crypto.DomainCoinID, []byte("a")))
	tokenB := CustomDenom(crypto.Keyed(crypto.DomainCoinID, []byte("b")))

	liqA := PoolLiqDenom(tokenA)
	liqB := PoolLiqDenom(tokenB)

	assert.False(t, liqA.Equal(liqB))
	assert.False(t, liqA.Equal(tokenA), "pool-liq denom must not collide with its own underlying token")
	assert.False(t, liqA.Equal(tokenB))
}

func TestStakeDocActiveBoundary(t *testing.T) {
	doc := &StakeDoc{EStart: 2, EPostEnd: 5}
	assert.False(t, doc.Active(1))
	assert.True(t, doc.Active(2))
	assert.True(t, doc.Active(4))
	assert.False(t, doc.Active(5), "e_post_end is exclusive")
}

func TestEpochArithmetic(t *testing.T) {
	assert.Equal(t, uint64(0), Epoch(0))
	assert.Equal(t, uint64(0), Epoch(StakeEpoch-1))
	assert.Equal(t, uint64(1), Epoch(StakeEpoch))
}

func TestVotingPowerSplitsEvenly(t *testing.T) {
	pkA := crypto.PublicKey([]byte("pubkey-a-------------------32by"))
	pkB := crypto.PublicKey([]byte("pubkey-b-------------------32by"))

	stakes := map[HashVal]*StakeDoc{
		crypto.Keyed(crypto.DomainCoinID, []byte("s1")): {Pubkey: pkA, EStart: 0, EPostEnd: 10, SymsStaked: NewCoinValue(100)},
		crypto.Keyed(crypto.DomainCoinID, []byte("s2")): {Pubkey: pkB, EStart: 0, EPostEnd: 10, SymsStaked: NewCoinValue(300)},
	}

	power := VotingPower(stakes, 0)
	assert.InDelta(t, 0.25, power[string(pkA)], 1e-9)
	assert.InDelta(t, 0.75, power[string(pkB)], 1e-9)
}

func TestTransactionHashNoSigsIgnoresSigs(t *testing.T) {
	tx := &Transaction{
		Kind:    TxNormal,
		Inputs:  []CoinID{{TxHash: crypto.Keyed(crypto.DomainCoinID, []byte("in")), Index: 0}},
		Outputs: []CoinData{{Covhash: crypto.Keyed(crypto.DomainCoinID, []byte("out")), Value: NewCoinValue(10), Denom: Mel()}},
		Fee:     NewCoinValue(1),
	}

	h1 := tx.HashNoSigs()
	tx.Sigs = [][]byte{[]byte("some-signature")}
	h2 := tx.HashNoSigs()

	assert.Equal(t, h1, h2)
}

func TestTransactionWellFormedRejectsZeroOutput(t *testing.T) {
	tx := &Transaction{
		Kind:    TxNormal,
		Inputs:  []CoinID{{TxHash: crypto.Keyed(crypto.DomainCoinID, []byte("in")), Index: 0}},
		Outputs: []CoinData{{Value: NewCoinValue(0), Denom: Mel()}},
	}
	assert.Error(t, tx.WellFormed())
}

func TestTransactionWellFormedAllowsEmptyInputsForFaucet(t *testing.T) {
	tx := &Transaction{
		Kind:    TxFaucet,
		Outputs: []CoinData{{Value: NewCoinValue(1), Denom: Mel()}},
	}
	assert.NoError(t, tx.WellFormed())
}

func TestBlockRoundTrip(t *testing.T) {
	tx := Transaction{
		Kind:    TxNormal,
		Inputs:  []CoinID{{TxHash: crypto.Keyed(crypto.DomainCoinID, []byte("in")), Index: 2}},
		Outputs: []CoinData{{Covhash: crypto.Keyed(crypto.DomainCoinID, []byte("out")), Value: NewCoinValue(5), Denom: Mel()}},
		Fee:     NewCoinValue(1),
	}
	block := &Block{
		Header:       Header{Network: NetworkTestnet, Height: 7},
		Transactions: []Transaction{tx},
		ProposerAction: &ProposerAction{
			FeeMultiplierDelta: -1,
			RewardDest:         crypto.Keyed(crypto.DomainCoinID, []byte("reward")),
		},
	}

	enc := stdcode.Marshal(block)
	var got Block
	require.NoError(t, stdcode.Unmarshal(enc, &got))

	assert.Equal(t, block.Header.Height, got.Header.Height)
	assert.Equal(t, block.ProposerAction.FeeMultiplierDelta, got.ProposerAction.FeeMultiplierDelta)
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, tx.HashNoSigs(), got.Transactions[0].HashNoSigs())
}

func TestConsensusProofVerify(t *testing.T) {
	pub, sk, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	blockHash := crypto.Keyed(crypto.DomainHeader, []byte("header-bytes"))
	sig := crypto.Sign(sk, blockHash[:])

	stakeHash := crypto.Keyed(crypto.DomainCoinID, []byte("stake"))
	stakes := map[HashVal]*StakeDoc{
		stakeHash: {Pubkey: pub, EStart: 0, EPostEnd: 1, SymsStaked: NewCoinValue(1)},
	}

	proof := ConsensusProof{string(pub): sig}
	assert.NoError(t, proof.Verify(blockHash, stakes, 0))
}
