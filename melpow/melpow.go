// Package melpow implements MelPoW, the non-interactive proof of
// sequential work (Cohen-Pietrzak subjected to a Fiat-Shamir transform)
// that backs DOSC minting (spec §4.D.2's DoscMint transaction kind). A
// Proof certifies that computing it required roughly 2^difficulty
// sequential hash evaluations starting from a puzzle nobody could have
// predicted in advance; verification, unlike generation, costs only
// O(Certainty * difficulty) hashes.
package melpow

import (
	"encoding/binary"
	"math/bits"
	"strconv"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
)

// Certainty is how many independently Fiat-Shamir-sampled DAG paths a
// proof reveals. False-accept probability for a prover who skipped work
// decays exponentially in this count.
const Certainty = 200

// MaxDifficulty bounds the DAG depth a proof may claim; Verify rejects
// anything above it outright, and node positions are packed into a
// 64-bit word so depths near this bound are already computationally
// infeasible to generate.
const MaxDifficulty = 100

// node identifies one vertex of the labeling DAG: a bit string of length
// len, packed into the low bits of bv.
type node struct {
	bv  uint64
	len uint8
}

func (n node) take(l uint8) node {
	if l < 64 {
		n.bv &= (uint64(1) << l) - 1
	}
	n.len = l
	return n
}

func (n node) appendBit(bit uint64) node {
	if n.len < 64 {
		n.bv |= bit << n.len
	}
	n.len++
	return n
}

func (n node) getBit(i uint8) uint64 {
	if i >= 64 {
		return 0
	}
	return (n.bv >> i) & 1
}

// getParents returns the DAG edges into n: for a leaf (len == difficulty)
// these are the other leaves whose sequential computation n's label
// depends on; for an internal node, its two children.
func (n node) getParents(difficulty uint8) []node {
	var parents []node
	if n.len == difficulty {
		for i := uint8(0); i < difficulty; i++ {
			if n.getBit(i) != 0 {
				parents = append(parents, n.take(i).appendBit(0))
			}
		}
	} else {
		parents = append(parents, n.appendBit(0), n.appendBit(1))
	}
	return parents
}

func (n node) uniqID() uint64 {
	return uint64(n.len)<<56 | n.bv
}

func (n node) toBytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n.uniqID())
	return b
}

func nodeFromBytes(b []byte) (node, bool) {
	if len(b) != 8 {
		return node{}, false
	}
	id := binary.BigEndian.Uint64(b)
	return node{bv: id << 8 >> 8, len: uint8(id >> 56)}, true
}

// accumulator mirrors melpow's length-prefixed hash builder: every
// added slice is prefixed with its own length so distinct (a,b) pairs
// can never collide through concatenation ambiguity.
type accumulator struct {
	key crypto.Hash
	buf []byte
}

func newAccumulator(key crypto.Hash) *accumulator {
	return &accumulator{key: key}
}

func (a *accumulator) add(data []byte) *accumulator {
	var lenBytes [8]byte
	binary.BigEndian.PutUint64(lenBytes[:], uint64(len(data)))
	a.buf = append(a.buf, lenBytes[:]...)
	a.buf = append(a.buf, data...)
	return a
}

func (a *accumulator) sum() crypto.Hash {
	return crypto.KeyedWithHash(a.key, a.buf)
}

// Chi derives the puzzle's sequential-work key (spec: `H("chi", puzzle)`).
func Chi(puzzle []byte) crypto.Hash {
	return crypto.Keyed(crypto.DomainMelPoWChi, puzzle)
}

func genGammas(puzzle []byte, difficulty uint8) []node {
	gammas := make([]node, Certainty)
	shift := uint(64 - difficulty)
	for i := 0; i < Certainty; i++ {
		seed := crypto.Keyed(crypto.DomainGammaPrefix+strconv.Itoa(i), puzzle)
		gInt := binary.LittleEndian.Uint64(seed[:8])
		if shift < 64 {
			gInt = (gInt >> shift) << shift
		} else {
			gInt = 0
		}
		gammas[i] = node{bv: bits.Reverse64(gInt), len: difficulty}
	}
	return gammas
}

// gammaToPath returns, for each depth along the root-to-gamma path, the
// sibling node not on that path — exactly the labels a verifier needs
// but cannot derive from gamma alone.
func gammaToPath(gamma node) []node {
	path := make([]node, gamma.len)
	for i := uint8(0); i < gamma.len; i++ {
		path[i] = gamma.take(i).appendBit(1 - gamma.getBit(i))
	}
	return path
}

// calcLabels computes every node's label in the full labeling DAG in
// the one sequential traversal that makes the scheme "proof of work":
// a leaf's label depends on earlier leaves', and an internal node's
// label depends on both its children's. emit is called once per
// computed label.
func calcLabels(chi crypto.Hash, difficulty uint8, emit func(node, crypto.Hash)) {
	ell := make(map[node]crypto.Hash)
	calcLabelsHelper(chi, difficulty, node{}, emit, ell)
}

func calcLabelsHelper(chi crypto.Hash, difficulty uint8, nd node, emit func(node, crypto.Hash), ell map[node]crypto.Hash) crypto.Hash {
	if nd.len == difficulty {
		acc := newAccumulator(chi).add(nd.toBytes())
		for _, p := range nd.getParents(difficulty) {
			lab := ell[p]
			acc.add(lab[:])
		}
		lab := acc.sum()
		emit(nd, lab)
		return lab
	}

	left := nd.appendBit(0)
	l0 := calcLabelsHelper(chi, difficulty, left, emit, ell)
	ell[left] = l0

	right := nd.appendBit(1)
	l1 := calcLabelsHelper(chi, difficulty, right, emit, ell)
	delete(ell, left)

	lab := newAccumulator(chi).add(nd.toBytes()).add(l0[:]).add(l1[:]).sum()
	emit(nd, lab)
	return lab
}

// Proof is an opaque MelPoW proof: the labels of exactly the DAG nodes
// a verifier needs, keyed by node identity.
type Proof struct {
	labels map[node]crypto.Hash
}

// Generate produces a proof that difficulty's worth of sequential work
// was done starting from puzzle. Cost is Θ(2^difficulty) hashes;
// difficulties above roughly 30 are impractical to generate.
func Generate(puzzle []byte, difficulty uint8) (*Proof, error) {
	if difficulty > MaxDifficulty {
		return nil, errors.New(errors.ErrBadMelPoW, "melpow: difficulty %d exceeds max %d", difficulty, MaxDifficulty)
	}
	chi := Chi(puzzle)
	gammas := genGammas(puzzle, difficulty)

	proofMap := make(map[node]crypto.Hash)
	proofMap[node{}] = crypto.Hash{}
	for _, g := range gammas {
		for _, pn := range gammaToPath(g) {
			proofMap[pn] = crypto.Hash{}
		}
		proofMap[g] = crypto.Hash{}
	}

	calcLabels(chi, difficulty, func(nd node, lab crypto.Hash) {
		if _, ok := proofMap[nd]; ok || nd.len == 0 {
			proofMap[nd] = lab
		}
	})

	return &Proof{labels: proofMap}, nil
}

// Verify reports whether proof certifies difficulty's worth of
// sequential work starting from puzzle.
//
// This recomputes, for each of Certainty sampled paths, the label chain
// from the claimed leaf up to the root using only the sibling labels the
// proof supplies, and checks the recomputed root matches the proof's
// declared root. The reference melpow implementation this is grounded
// on (original_source/libs/melpow) computes this same recomputation but
// then compares its declared root to itself rather than to the freshly
// recomputed one, making that check a no-op; this port compares against
// the recomputed root instead; see the grounding ledger.
func Verify(proof *Proof, puzzle []byte, difficulty uint8) bool {
	if proof == nil || difficulty > MaxDifficulty {
		return false
	}
	chi := Chi(puzzle)
	gammas := genGammas(puzzle, difficulty)

	root, ok := proof.labels[node{}]
	if !ok {
		return false
	}

	for _, gamma := range gammas {
		label, ok := proof.labels[gamma]
		if !ok {
			return false
		}

		acc := newAccumulator(chi).add(gamma.toBytes())
		for _, parent := range gamma.getParents(difficulty) {
			parLab, ok := proof.labels[parent]
			if !ok {
				return false
			}
			acc.add(parLab[:])
		}
		if acc.sum() != label {
			return false
		}

		tempMap := make(map[node]crypto.Hash, len(proof.labels))
		for k, v := range proof.labels {
			tempMap[k] = v
		}
		for i := int(difficulty) - 1; i >= 0; i-- {
			prefix := gamma.take(uint8(i))
			g0 := prefix.appendBit(0)
			g1 := prefix.appendBit(1)
			l0, ok0 := tempMap[g0]
			l1, ok1 := tempMap[g1]
			if !ok0 || !ok1 {
				return false
			}
			h := newAccumulator(chi).add(prefix.toBytes()).add(l0[:]).add(l1[:]).sum()
			tempMap[prefix] = h
		}
		if tempMap[node{}] != root {
			return false
		}
	}

	return true
}

// Bytes serializes a proof as a flat sequence of (8-byte node id, 32-byte
// label) units, in unspecified order.
func (p *Proof) Bytes() []byte {
	const unit = 8 + crypto.HashSize
	out := make([]byte, 0, unit*len(p.labels))
	for k, v := range p.labels {
		out = append(out, k.toBytes()...)
		out = append(out, v[:]...)
	}
	return out
}

// ProofFromBytes deserializes the wire form Bytes produces.
func ProofFromBytes(b []byte) (*Proof, error) {
	const unit = 8 + crypto.HashSize
	if len(b)%unit != 0 {
		return nil, errors.New(errors.ErrCorrupt, "melpow: proof length %d not a multiple of %d", len(b), unit)
	}
	labels := make(map[node]crypto.Hash, len(b)/unit)
	for len(b) > 0 {
		nd, ok := nodeFromBytes(b[:8])
		if !ok {
			return nil, errors.New(errors.ErrCorrupt, "melpow: malformed node encoding")
		}
		labels[nd] = crypto.HashFromBytes(b[8:unit])
		b = b[unit:]
	}
	return &Proof{labels: labels}, nil
}
