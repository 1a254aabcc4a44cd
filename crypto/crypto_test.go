package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedDomainSeparation(t *testing.T) {
	data := []byte("hello")
	a := Keyed(DomainCoinID, data)
	b := Keyed(DomainHeader, data)
	assert.NotEqual(t, a, b, "different domains must not collide")
}

func TestKeyedDeterministic(t *testing.T) {
	data := []byte("deterministic")
	assert.Equal(t, Keyed(DomainSMTNode, data), Keyed(DomainSMTNode, data))
}

func TestSignVerify(t *testing.T) {
	pub, sk, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("spend this coin")
	sig := Sign(sk, msg)

	assert.True(t, Verify(pub, msg, sig))
	assert.False(t, Verify(pub, []byte("different message"), sig))

	otherPub, _, err := GenerateKeypair()
	require.NoError(t, err)
	assert.False(t, Verify(otherPub, msg, sig))
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	assert.False(t, Verify(nil, []byte("msg"), nil))
	assert.False(t, Verify([]byte{1, 2, 3}, []byte("msg"), []byte{4, 5}))
}
