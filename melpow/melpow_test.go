package melpow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateThenVerify(t *testing.T) {
	puzzle := []byte("")
	const difficulty = 8

	proof, err := Generate(puzzle, difficulty)
	require.NoError(t, err)
	assert.True(t, Verify(proof, puzzle, difficulty))
}

func TestVerifyRejectsWrongDifficulty(t *testing.T) {
	puzzle := []byte("")
	const difficulty = 8

	proof, err := Generate(puzzle, difficulty)
	require.NoError(t, err)
	assert.False(t, Verify(proof, puzzle, difficulty+1))
}

func TestVerifyRejectsWrongPuzzle(t *testing.T) {
	const difficulty = 8

	proof, err := Generate([]byte(""), difficulty)
	require.NoError(t, err)
	assert.False(t, Verify(proof, []byte("hello"), difficulty))
}

func TestProofRoundTripsThroughBytes(t *testing.T) {
	puzzle := []byte("round-trip-puzzle")
	const difficulty = 6

	proof, err := Generate(puzzle, difficulty)
	require.NoError(t, err)

	decoded, err := ProofFromBytes(proof.Bytes())
	require.NoError(t, err)
	assert.True(t, Verify(decoded, puzzle, difficulty))
}

func TestGenerateRejectsExcessiveDifficulty(t *testing.T) {
	_, err := Generate([]byte(""), MaxDifficulty+1)
	require.Error(t, err)
}

func TestVerifyRejectsTamperedLabel(t *testing.T) {
	puzzle := []byte("tamper-me")
	const difficulty = 6

	proof, err := Generate(puzzle, difficulty)
	require.NoError(t, err)

	for k := range proof.labels {
		proof.labels[k] = [32]byte{0xff}
		break
	}
	assert.False(t, Verify(proof, puzzle, difficulty))
}
