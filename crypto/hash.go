// Package crypto wraps the node's two cryptographic primitives: keyed
// BLAKE3 hashing (used for every content-address and domain-tagged hash
// in the system) and Ed25519 signing (used for the std_ed25519_pk
// covenant template and for consensus message signatures).
package crypto

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the width, in bytes, of every hash in the system.
const HashSize = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash; it is the SMT's empty-subtree hash and
// the Previous hash of the genesis header.
var ZeroHash Hash

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

func (h Hash) String() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, HashSize*2)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// HashFromBytes copies b (which must be exactly HashSize long) into a Hash.
func HashFromBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// MarshalYAML renders a Hash as lowercase hex, so genesis/staker config
// files can name covhashes and pubkeys as plain strings.
func (h Hash) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// UnmarshalYAML parses a Hash from its hex string form.
func (h *Hash) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid Hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return fmt.Errorf("invalid Hash %q: want %d bytes, got %d", s, HashSize, len(b))
	}
	*h = HashFromBytes(b)
	return nil
}

// Domain tags used throughout the node. Keeping them as named constants
// here, rather than inline string literals at each call site, is what
// keeps every hash in the system collision-separated by construction:
// two different subsystems hashing the same bytes under different tags
// can never produce the same digest.
const (
	DomainSMTNode       = "smt-node"
	DomainSMTLeaf       = "smt-leaf"
	DomainCoinID        = "coin-id"
	DomainHeader        = "themelio-header"
	DomainTxNoSigs      = "tx-no-sigs"
	DomainMelPoWChi     = "chi"
	DomainGammaPrefix   = "gamma-" // followed by the MelPoW recursion depth
	DomainProposalSig   = "symph_prop_sig"
	DomainVoteSig       = "symph_vote_sig"
	DomainGossipNsMsg   = "ns-msg"
	DomainPoolLiqToken  = "pool-liq"
	DomainProposerRwd   = "proposer-reward"
	DomainStakeReserved = "stake-reserved"
)

// Keyed returns the keyed BLAKE3 hash of data under the given domain tag.
// The key is the domain tag itself, copied into a 32-byte key that is
// zero-padded on the right (and truncated if the tag is longer); this is
// what makes every call site's hash domain-separated from every other by
// construction.
func Keyed(domain string, data ...[]byte) Hash {
	var key [32]byte
	copy(key[:], domain)

	h := blake3.New(HashSize, key[:])
	for _, d := range data {
		_, _ = h.Write(d)
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// KeyedWithHash is Keyed's counterpart for MelPoW's recursive labeling,
// where the key is itself a 32-byte hash (chi) rather than a short domain
// tag string — used to compute each label in the sequential-work DAG under
// a fixed puzzle-derived key.
func KeyedWithHash(key Hash, data ...[]byte) Hash {
	h := blake3.New(HashSize, key[:])
	for _, d := range data {
		_, _ = h.Write(d)
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Plain returns the unkeyed BLAKE3 hash of data, used only where the spec
// calls for a bare content-address (e.g. CAS keys) rather than a
// domain-tagged hash.
func Plain(data ...[]byte) Hash {
	h := blake3.New(HashSize, nil)
	for _, d := range data {
		_, _ = h.Write(d)
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
