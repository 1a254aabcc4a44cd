package covenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
)

func sampleTx() *model.Transaction {
	return &model.Transaction{
		Kind: model.TxNormal,
		Inputs: []model.CoinID{
			{TxHash: crypto.Keyed(crypto.DomainCoinID, []byte("in")), Index: 0},
		},
		Outputs: []model.CoinData{
			{Value: model.NewCoinValue(1), Denom: model.Mel()},
		},
	}
}

func TestStdEd25519PkAcceptsValidSig(t *testing.T) {
	pub, sk, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	tx := sampleTx()
	msg := tx.HashNoSigs()
	tx.Sigs = [][]byte{crypto.Sign(sk, msg[:])}

	program := StdEd25519Pk(pub)
	assert.True(t, Eval(program, &Context{Tx: tx}))
}

func TestStdEd25519PkRejectsWrongKey(t *testing.T) {
	_, sk, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	otherPub, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	tx := sampleTx()
	msg := tx.HashNoSigs()
	tx.Sigs = [][]byte{crypto.Sign(sk, msg[:])}

	program := StdEd25519Pk(otherPub)
	assert.False(t, Eval(program, &Context{Tx: tx}))
}

func TestStdEd25519PkRejectsNoSigs(t *testing.T) {
	pub, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	tx := sampleTx()
	program := StdEd25519Pk(pub)
	assert.False(t, Eval(program, &Context{Tx: tx}))
}

func TestEvalMalformedProgramNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.False(t, Eval([]byte{byte(OpPushBytes), 0xff, 0xff, 0xff}, &Context{Tx: sampleTx()}))
	})
	assert.False(t, Eval([]byte{byte(OpVerify)}, &Context{Tx: sampleTx()}))
	assert.False(t, Eval([]byte{0xfe}, &Context{Tx: sampleTx()}))
}

func TestEvalEqualAndDup(t *testing.T) {
	w := &programWriter{}
	w.op(OpPushBytes)
	w.uvarint(3)
	w.bytes([]byte("abc"))
	w.op(OpDup)
	w.op(OpEqual)

	assert.True(t, Eval(w.buf, &Context{Tx: sampleTx()}))
}

func TestHashIsContentAddressed(t *testing.T) {
	programA := []byte{byte(OpTrue)}
	programB := []byte{byte(OpFalse)}
	assert.NotEqual(t, Hash(programA), Hash(programB))
	assert.Equal(t, Hash(programA), Hash(programA))
}
