package consensus

import (
	"bytes"
	"sync"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
)

// node is one block in the in-memory proposal tree: every proposed block
// this instance has seen, whether or not it has been notarized yet.
type node struct {
	header *model.Header
	block  *model.Block
	parent *node

	notarized bool
	proof     model.ConsensusProof
	votes     map[string][]byte // pubkey string -> signature, before notarization

	// nonEmptyRun is the count of non-empty notarized blocks on the path
	// from genesis to this node, inclusive; an empty block leaves it
	// unchanged rather than resetting it. LNCTip compares it between
	// candidate tips.
	nonEmptyRun int
}

func (n *node) nonEmpty() bool {
	return n.block != nil && len(n.block.Transactions) > 0
}

// Chain tracks every proposed block since genesis and answers the two
// questions the pacemaker needs each height: what is the current
// longest-notarized-chain (LNC) tip to extend, and has a block become
// finalized.
type Chain struct {
	mu       sync.Mutex
	nodes    map[model.HashVal]*node
	tips     map[model.HashVal]*node
	genesis  *node
	finalSeq []model.HashVal // finalized block hashes, in height order
}

// NewChain seeds the tree with the epoch's genesis header, implicitly
// notarized and finalized.
func NewChain(genesisHeader *model.Header) *Chain {
	hash := genesisHeader.Hash()
	root := &node{header: genesisHeader, notarized: true, nonEmptyRun: 0}
	return &Chain{
		nodes:   map[model.HashVal]*node{hash: root},
		tips:    map[model.HashVal]*node{hash: root},
		genesis: root,
	}
}

// AddProposal registers a proposed block extending parentHash. It is a
// no-op if the block is already known.
func (c *Chain) AddProposal(block *model.Block, parentHash model.HashVal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := block.Header.Hash()
	if _, ok := c.nodes[hash]; ok {
		return nil
	}

	parent, ok := c.nodes[parentHash]
	if !ok {
		return errors.New(errors.ErrNotFound, "unknown parent block %s", parentHash)
	}

	n := &node{header: &block.Header, block: block, parent: parent, votes: make(map[string][]byte)}
	c.nodes[hash] = n

	delete(c.tips, parentHash)
	c.tips[hash] = n
	return nil
}

// RecordVote tallies one voter's endorsement of blockHash and reports
// whether the cumulative voting power recorded so far now exceeds
// BFTThreshold (i.e. the block becomes notarized by this vote).
func (c *Chain) RecordVote(blockHash model.HashVal, voterPK string, sig []byte, power map[string]float64) (notarizedNow bool, proof model.ConsensusProof) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[blockHash]
	if !ok || n.notarized {
		return false, nil
	}

	n.votes[voterPK] = sig

	var sum float64
	for pk := range n.votes {
		sum += power[pk]
	}

	if sum <= BFTThreshold {
		return false, nil
	}

	n.notarized = true
	n.proof = make(model.ConsensusProof, len(n.votes))
	for pk, s := range n.votes {
		n.proof[pk] = s
	}
	if n.parent != nil {
		n.nonEmptyRun = n.parent.nonEmptyRun
	}
	if n.nonEmpty() {
		n.nonEmptyRun++
	}
	c.tryFinalize(n)
	return true, n.proof
}

// Notarize force-sets a block as notarized from an externally-supplied
// proof (e.g. a ConfirmResp fetched during sync catch-up), bypassing the
// vote tally.
func (c *Chain) Notarize(blockHash model.HashVal, proof model.ConsensusProof) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[blockHash]
	if !ok {
		return errors.New(errors.ErrNotFound, "unknown block %s", blockHash)
	}
	if n.notarized {
		return nil
	}
	n.notarized = true
	n.proof = proof
	if n.parent != nil {
		n.nonEmptyRun = n.parent.nonEmptyRun
	}
	if n.nonEmpty() {
		n.nonEmptyRun++
	}
	c.tryFinalize(n)
	return nil
}

// tryFinalize walks back FinalizationRun-1 ancestors from n; if every one
// of them is notarized too (three-in-a-row, counting n), the oldest of the
// run — and everything behind it — is finalized (spec §4.G.5).
func (c *Chain) tryFinalize(n *node) {
	cur := n
	for i := 0; i < FinalizationRun-1; i++ {
		if cur.parent == nil || !cur.parent.notarized {
			return
		}
		cur = cur.parent
	}
	// cur is the oldest of the run; everything from genesis to cur is
	// now known-finalized. Record the path if not already recorded.
	var path []model.HashVal
	for w := cur; w != nil && w != c.genesis; w = w.parent {
		path = append(path, w.header.Hash())
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if len(path) > len(c.finalSeq) {
		c.finalSeq = path
	}
}

// Finalized reports the hash of the highest finalized block known so far,
// or false if nothing beyond genesis has finalized yet.
func (c *Chain) Finalized() (model.HashVal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.finalSeq) == 0 {
		return model.HashVal{}, false
	}
	return c.finalSeq[len(c.finalSeq)-1], true
}

// LNCTip computes the longest-notarized-chain tip (spec §4.G.3): each
// known tip is walked back to its most recent notarized ancestor, and
// the candidate with the most non-empty notarized blocks back to genesis
// wins; ties break on the lexicographically smaller header hash.
func (c *Chain) LNCTip() *model.Header {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *node
	var bestHash model.HashVal

	for _, tip := range c.tips {
		anchor := tip
		for anchor != nil && !anchor.notarized {
			anchor = anchor.parent
		}
		if anchor == nil {
			continue
		}

		hash := anchor.header.Hash()
		switch {
		case best == nil:
			best, bestHash = anchor, hash
		case anchor.nonEmptyRun > best.nonEmptyRun:
			best, bestHash = anchor, hash
		case anchor.nonEmptyRun == best.nonEmptyRun && bytes.Compare(hash[:], bestHash[:]) < 0:
			best, bestHash = anchor, hash
		}
	}

	if best == nil {
		return c.genesis.header
	}
	return best.header
}

// HasVoted reports whether voterPK has already voted at height h for any
// block — used to enforce the "refuse to vote twice at the same height"
// rule (spec §4.G's equivocation and crash-recovery behavior) alongside
// the on-disk VoteJournal.
func (c *Chain) HasVoted(h model.BlockHeight, voterPK string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.header.Height != h || n.votes == nil {
			continue
		}
		if _, ok := n.votes[voterPK]; ok {
			return true
		}
	}
	return false
}

// Block returns the full block for hash, if this instance has it.
func (c *Chain) Block(hash model.HashVal) (*model.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[hash]
	if !ok || n.block == nil {
		return nil, false
	}
	return n.block, true
}
