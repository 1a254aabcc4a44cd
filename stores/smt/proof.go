package smt

import (
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// Proof is the raw 256-element sibling path from root to leaf for one key.
type Proof struct {
	Siblings [Depth]crypto.Hash
}

// CompressedProof is a bitmap of which siblings are the empty hash
// (overwhelmingly most of them, in a sparse tree) followed by the
// concatenated nonzero 32-byte siblings in root-to-leaf order.
type CompressedProof struct {
	ZeroBitmap [Depth / 8]byte
	NonZero    []byte
}

// Compress packs a Proof into its wire form.
func (p Proof) Compress() CompressedProof {
	var c CompressedProof
	for i, s := range p.Siblings {
		if s == EmptyRoot {
			c.ZeroBitmap[i/8] |= 1 << uint(7-i%8)
		} else {
			c.NonZero = append(c.NonZero, s[:]...)
		}
	}
	return c
}

// Decompress expands a CompressedProof back into a full Proof.
func (c CompressedProof) Decompress() (Proof, error) {
	var p Proof
	offset := 0
	for i := 0; i < Depth; i++ {
		isZero := c.ZeroBitmap[i/8]&(1<<uint(7-i%8)) != 0
		if isZero {
			p.Siblings[i] = EmptyRoot
			continue
		}
		if offset+crypto.HashSize > len(c.NonZero) {
			return p, errors.New(errors.ErrCorrupt, "smt: truncated compressed proof")
		}
		p.Siblings[i] = crypto.HashFromBytes(c.NonZero[offset : offset+crypto.HashSize])
		offset += crypto.HashSize
	}
	if offset != len(c.NonZero) {
		return p, errors.New(errors.ErrCorrupt, "smt: %d trailing bytes in compressed proof", len(c.NonZero)-offset)
	}
	return p, nil
}

func (c CompressedProof) Bytes() []byte {
	out := make([]byte, 0, len(c.ZeroBitmap)+len(c.NonZero))
	out = append(out, c.ZeroBitmap[:]...)
	out = append(out, c.NonZero...)
	return out
}

func CompressedProofFromBytes(b []byte) (CompressedProof, error) {
	var c CompressedProof
	if len(b) < len(c.ZeroBitmap) {
		return c, errors.New(errors.ErrCorrupt, "smt: compressed proof shorter than bitmap")
	}
	copy(c.ZeroBitmap[:], b[:len(c.ZeroBitmap)])
	c.NonZero = append([]byte(nil), b[len(c.ZeroBitmap):]...)
	return c, nil
}

// VerifyProof reports whether proof certifies that key maps to value
// under root. An empty value verifies non-membership.
func VerifyProof(root crypto.Hash, key, value []byte, proof Proof) bool {
	path := Path(key)

	var current crypto.Hash
	if len(value) == 0 {
		current = EmptyRoot
	} else {
		current = crypto.Keyed(crypto.DomainSMTLeaf, marshalLeafForProof(key, value))
	}

	for depth := Depth - 1; depth >= 0; depth-- {
		sibling := proof.Siblings[depth]
		var left, right crypto.Hash
		if bitAt(path, depth) {
			left, right = sibling, current
		} else {
			left, right = current, sibling
		}
		if left == EmptyRoot && right == EmptyRoot {
			current = EmptyRoot
		} else {
			current = crypto.Keyed(crypto.DomainSMTNode, left[:], right[:])
		}
	}

	return current == root
}

// marshalLeafForProof mirrors leafNode's encoding so VerifyProof can
// recompute a leaf hash without touching the CAS.
func marshalLeafForProof(key, value []byte) []byte {
	return stdcode.Marshal(&leafNode{Key: key, Value: value})
}
