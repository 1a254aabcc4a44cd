// Package consensus implements the Streamlet-style BFT protocol of spec
// §4.G ("Symphonia"): a leader-per-height pacemaker that proposes,
// votes, notarizes and finalizes blocks atop the state-transition
// function in package state, gossiping over the shared p2p transport.
package consensus

import (
	"bytes"
	"context"
	"sort"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/stores/cas"
)

// BFTThreshold is the fraction of active voting power a set of
// signatures must exceed to notarize a block (spec §4.G.4: "more than
// 2/3"). It matches the strict-greater-than bound model.ConsensusProof.Verify
// already enforces, so a proof this package assembles always verifies.
const BFTThreshold = 2.0 / 3.0

// FinalizationRun is the number of consecutive notarized blocks along one
// parent chain that finalizes the oldest of them (spec §4.G.5:
// "three-in-a-row"). Chain.tryFinalize counts notarization only; whether
// a block carries transactions does not affect the count.
const FinalizationRun = 3

// BuildBlockFunc proposes the next block extending the chain whose tip
// header is tipHeader. Node wiring (Module I) supplies this as a closure
// over the node's mempool and STF, so the pacemaker itself never touches
// a live State directly — it only tracks headers and proof tallies.
type BuildBlockFunc func(ctx context.Context, tipHeader *model.Header) (*model.Block, error)

// EpochConfig is the per-epoch parameterization of one running instance
// of the protocol (spec §4.G: "EpochConfig = {genesis, forest, ...}").
// A node constructs a fresh EpochConfig (and Pacemaker) each time the
// active staker set rolls over to a new epoch.
type EpochConfig struct {
	Network   model.NetworkID
	Epoch     uint64
	Genesis   *state.SealedState
	Forest    cas.Store
	Stakes    map[model.HashVal]*model.StakeDoc
	SigningPK crypto.PublicKey
	SigningSK crypto.SecretKey
	BuildBlock BuildBlockFunc
}

// Stakers returns every pubkey with an active stake in this epoch,
// deterministically ordered by raw public-key bytes — the ordering spec
// §4.G.1's leader(h) = stakers_sorted[h mod N] depends on.
func (c *EpochConfig) Stakers() []crypto.PublicKey {
	seen := make(map[string]struct{})
	var out []crypto.PublicKey
	for _, doc := range c.Stakes {
		if !doc.Active(c.Epoch) {
			continue
		}
		key := string(doc.Pubkey)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, doc.Pubkey)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// Leader returns the pubkey responsible for proposing at height h (spec
// §4.G.1). It is undefined (returns a zero-length key) for an epoch with
// no active stakers; callers must not reach that state in practice since
// an epoch transition requires at least one active staker to proceed.
func (c *EpochConfig) Leader(h model.BlockHeight) crypto.PublicKey {
	stakers := c.Stakers()
	if len(stakers) == 0 {
		return nil
	}
	return stakers[uint64(h)%uint64(len(stakers))]
}

// IsLeader reports whether this config's own signing key is the leader
// at height h.
func (c *EpochConfig) IsLeader(h model.BlockHeight) bool {
	leader := c.Leader(h)
	return leader != nil && bytes.Equal(leader, c.SigningPK)
}

// VotingPower is this epoch's fractional-power table, keyed the same way
// model.ConsensusProof.Verify and Vote tallying both key their maps: the
// string form of a staker's raw pubkey bytes.
func (c *EpochConfig) VotingPower() map[string]float64 {
	return model.VotingPower(c.Stakes, c.Epoch)
}
