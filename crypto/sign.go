package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/ed25519"

	"github.com/themelio-labs/themelio-core/errors"
)

// PublicKey and SecretKey are thin aliases over x/crypto/ed25519's types,
// kept as named types so call sites never import ed25519 directly.
type PublicKey = ed25519.PublicKey
type SecretKey = ed25519.PrivateKey

// GenerateKeypair returns a fresh Ed25519 keypair.
func GenerateKeypair() (PublicKey, SecretKey, error) {
	pub, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.New(errors.ErrInternal, "generating ed25519 keypair", err)
	}
	return pub, sk, nil
}

// Sign signs msg with sk, returning the raw 64-byte Ed25519 signature.
func Sign(sk SecretKey, msg []byte) []byte {
	return ed25519.Sign(sk, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg by pk.
// It never panics: malformed keys or signatures verify false rather than
// aborting the caller, matching the covenant VM's "failures evaluate to
// false" rule.
func Verify(pk PublicKey, msg, sig []byte) bool {
	if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pk, msg, sig)
}
