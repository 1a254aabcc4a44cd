package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/melpow"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
)

func buildDoscMintTx(t *testing.T, parentCoinHash crypto.Hash, firstInput model.CoinID, difficulty uint8, doscSpeed uint64) *model.Transaction {
	t.Helper()

	puzzle := DoscPuzzle(parentCoinHash, firstInput)
	proof, err := melpow.Generate(puzzle, difficulty)
	require.NoError(t, err)

	data := stdcode.Marshal(&DoscMintData{Difficulty: difficulty, Proof: proof.Bytes()})

	return &model.Transaction{
		Kind:   model.TxDoscMint,
		Inputs: []model.CoinID{firstInput},
		Outputs: []model.CoinData{{
			Denom: model.NomDosc(),
			Value: DoscMintValue(difficulty, doscSpeed),
		}},
		Data: data,
	}
}

func TestVerifyDoscMintAcceptsValidProof(t *testing.T) {
	firstInput := model.CoinID{TxHash: crypto.Plain([]byte("some-spent-coin"))}
	parentCoinHash := crypto.Plain([]byte("parent"))
	const difficulty = 8
	const doscSpeed = 1

	tx := buildDoscMintTx(t, parentCoinHash, firstInput, difficulty, doscSpeed)

	got, err := VerifyDoscMint(tx, parentCoinHash, doscSpeed)
	require.NoError(t, err)
	assert.Equal(t, DoscMintValue(difficulty, doscSpeed), got)
}

func TestVerifyDoscMintRejectsWrongParent(t *testing.T) {
	firstInput := model.CoinID{TxHash: crypto.Plain([]byte("some-spent-coin"))}
	parentCoinHash := crypto.Plain([]byte("parent"))
	const difficulty = 8

	tx := buildDoscMintTx(t, parentCoinHash, firstInput, difficulty, 1)

	_, err := VerifyDoscMint(tx, crypto.Plain([]byte("different-parent")), 1)
	require.Error(t, err)
}

func TestVerifyDoscMintRejectsWrongOutputValue(t *testing.T) {
	firstInput := model.CoinID{TxHash: crypto.Plain([]byte("some-spent-coin"))}
	parentCoinHash := crypto.Plain([]byte("parent"))
	const difficulty = 8

	tx := buildDoscMintTx(t, parentCoinHash, firstInput, difficulty, 1)
	tx.Outputs[0].Value = model.NewCoinValue(1)

	_, err := VerifyDoscMint(tx, parentCoinHash, 1)
	require.Error(t, err)
}

func TestVerifyDoscMintRejectsNoInputs(t *testing.T) {
	tx := &model.Transaction{
		Kind:    model.TxDoscMint,
		Outputs: []model.CoinData{{Denom: model.NomDosc(), Value: model.NewCoinValue(1)}},
	}
	_, err := VerifyDoscMint(tx, crypto.Hash{}, 1)
	require.Error(t, err)
}

func TestDoscInflatorShrinksAsSpeedRises(t *testing.T) {
	low := DoscMintValue(10, 1)
	high := DoscMintValue(10, 1000)
	assert.True(t, high.Cmp(low) < 0)
}

func TestUpdateDoscSpeedIsNonDecreasing(t *testing.T) {
	speed := uint64(100)
	next := UpdateDoscSpeed(speed, 0)
	assert.True(t, next >= speed)
}

func TestUpdateDoscSpeedRisesWithSustainedWork(t *testing.T) {
	speed := uint64(0)
	for i := 0; i < DoscSpeedWindow*2; i++ {
		speed = UpdateDoscSpeed(speed, 1<<20)
	}
	assert.Greater(t, speed, uint64(0))
}
