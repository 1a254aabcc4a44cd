package consensus

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// Pacemaker states per slot, driven by looplab/fsm the way the teacher's
// Blockchain service drives its own run-state machine: "idle" until a
// proposal is seen or made, "proposed" once a candidate block for this
// height exists, "voted" once this instance has cast its own vote,
// "notarized" once the block has cleared BFTThreshold.
const (
	StateIdle       = "idle"
	StateProposed   = "proposed"
	StateVoted      = "voted"
	StateNotarized  = "notarized"
)

// initialBackoff/maxBackoffCap bound the no-proposal-by-deadline timer
// (spec §5: "consensus timers: exponential starting at 5s").
const (
	initialBackoff = 5 * time.Second
	maxBackoffCap  = 60 * time.Second
)

// AppliedBlock is a finalized (block, consensus proof) pair the
// orchestrator (Module I) drives through apply_block.
type AppliedBlock struct {
	Block *model.Block
	Proof model.ConsensusProof
}

// Pacemaker runs the per-height protocol loop for one epoch (spec
// §4.G.1-§4.G.5). One Pacemaker exists per running EpochConfig; a node
// running as a staker constructs a fresh one each time the active epoch
// rolls over.
type Pacemaker struct {
	cfg     *EpochConfig
	chain   *Chain
	journal *VoteJournal
	gossip  *Gossip
	buf     *DeliveryBuffer
	logger  ulogger.Logger

	fsm *fsm.FSM
}

// NewPacemaker builds a Pacemaker seeded at cfg.Genesis's header.
func NewPacemaker(cfg *EpochConfig, journal *VoteJournal, gossip *Gossip, logger ulogger.Logger) *Pacemaker {
	p := &Pacemaker{
		cfg:     cfg,
		chain:   NewChain(cfg.Genesis.Header),
		journal: journal,
		gossip:  gossip,
		buf:     &DeliveryBuffer{},
		logger:  logger.New("pacemaker"),
	}

	p.fsm = fsm.NewFSM(StateIdle, fsm.Events{
		{Name: "propose", Src: []string{StateIdle}, Dst: StateProposed},
		{Name: "vote", Src: []string{StateProposed}, Dst: StateVoted},
		{Name: "notarize", Src: []string{StateVoted, StateProposed}, Dst: StateNotarized},
		{Name: "advance", Src: []string{StateIdle, StateProposed, StateVoted, StateNotarized}, Dst: StateIdle},
	}, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			p.logger.Debugf("[pacemaker] %s -> %s (%s)", e.Src, e.Dst, e.Event)
		},
	})

	if err := gossip.Start(context.Background(), p.buf); err != nil {
		logger.Errorf("[pacemaker] starting gossip: %v", err)
	}

	return p
}

// Chain exposes the underlying block tree for sync/RPC readers.
func (p *Pacemaker) Chain() *Chain { return p.chain }

// RunHeight drives height h's slot to completion: propose-or-wait, vote,
// wait for notarization. It returns the notarized AppliedBlock, or an
// error classified per spec §7 (ErrProposerMismatch/ErrBadProposalSig/
// ErrNotExtendingLNC/ErrWrongHeight abort just this slot; the caller
// retries the same height with an empty block on timeout).
func (p *Pacemaker) RunHeight(ctx context.Context, h model.BlockHeight) (*AppliedBlock, error) {
	_ = p.fsm.Event(ctx, "advance")

	leader := p.cfg.Leader(h)
	if leader == nil {
		return nil, errors.New(errors.ErrWrongHeight, "no active stakers for epoch %d", p.cfg.Epoch)
	}

	tip := p.chain.LNCTip()
	if tip.Height+1 != model.BlockHeight(h) {
		return nil, errors.New(errors.ErrWrongHeight, "height %d does not extend LNC tip at %d", h, tip.Height)
	}

	// Each round proposes (if leader) and waits up to backoff for
	// notarization; a round that times out doubles the wait and retries
	// the same height, per spec §5's exponential-starting-at-5s timer.
	backoff := initialBackoff
	for {
		if p.cfg.IsLeader(h) {
			if err := p.propose(ctx, h, tip); err != nil {
				return nil, err
			}
		}

		applied, err := p.awaitNotarization(ctx, h, tip.Hash(), backoff)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, errors.New(errors.ErrTimedOut, "")) {
			return nil, err
		}

		p.logger.Debugf("[pacemaker] height %d not notarized within %s, retrying", h, backoff)
		backoff *= 2
		if backoff > maxBackoffCap {
			backoff = maxBackoffCap
		}
	}
}

func (p *Pacemaker) propose(ctx context.Context, h model.BlockHeight, tip *model.Header) error {
	// A retried round (or a restarted process) must not propose and
	// self-vote a second block at a height it already voted at.
	if _, voted, err := p.journal.Voted(p.cfg.Epoch, h); err != nil {
		return errors.New(errors.ErrInternal, "reading vote journal", err)
	} else if voted {
		return nil
	}

	block, err := p.cfg.BuildBlock(ctx, tip)
	if err != nil {
		return errors.New(errors.ErrInternal, "building block for height %d", h, err)
	}

	abbr := model.AbbrBlock{Header: block.Header, TxHashes: txHashes(block)}
	prop := &Proposal{AbbrBlock: abbr, LastNonempty: p.lastNonempty()}

	if err := p.chain.AddProposal(block, tip.Hash()); err != nil {
		return err
	}
	_ = p.fsm.Event(ctx, "propose")

	if err := p.gossip.Broadcast(ctx, p.cfg.SigningSK, p.cfg.SigningPK, uint64(time.Now().Unix()), KindProposal, prop); err != nil {
		return err
	}

	// The leader counts as a voter too; since gossip never delivers a
	// node's own broadcasts back to itself, the leader's vote on its own
	// proposal is cast directly rather than via a gossip round-trip.
	hash := block.Header.Hash()
	if err := p.journal.RecordVote(p.cfg.Epoch, h, hash); err != nil {
		return errors.New(errors.ErrInternal, "recording leader's own vote", err)
	}
	vote := SignVote(p.cfg.SigningSK, hash)
	_ = p.fsm.Event(ctx, "vote")
	p.chain.RecordVote(hash, string(p.cfg.SigningPK), vote.Sig, p.cfg.VotingPower())
	return p.gossip.Broadcast(ctx, p.cfg.SigningSK, p.cfg.SigningPK, uint64(time.Now().Unix()), KindVote, vote)
}

func (p *Pacemaker) lastNonempty() model.HashVal {
	if hash, ok := p.chain.Finalized(); ok {
		return hash
	}
	return p.cfg.Genesis.Header.Hash()
}

// pollInterval is how often awaitNotarization drains the gossip delivery
// buffer while waiting out a round's backoff deadline.
const pollInterval = 50 * time.Millisecond

// awaitNotarization drains gossip deliveries for height h, verifying and
// voting on proposals and tallying votes, until the block notarizes or
// deadline elapses. A round that times out returns ErrTimedOut so
// RunHeight can retry the height with a doubled backoff (spec §5).
func (p *Pacemaker) awaitNotarization(ctx context.Context, h model.BlockHeight, parentHash model.HashVal, deadline time.Duration) (*AppliedBlock, error) {
	power := p.cfg.VotingPower()
	timeout := time.After(deadline)

	for {
		for _, d := range p.buf.Drain() {
			switch msg := d.Message.(type) {
			case *Proposal:
				p.handleProposal(ctx, h, parentHash, d.SenderPK, msg)
			case *Vote:
				if notarized, proof := p.chain.RecordVote(msg.BlockHash, d.SenderPK, msg.Sig, power); notarized {
					_ = p.fsm.Event(ctx, "notarize")
					block, ok := p.chain.Block(msg.BlockHash)
					if ok {
						return &AppliedBlock{Block: block, Proof: proof}, nil
					}
				}
			}
		}

		if hash, ok := p.chain.Finalized(); ok {
			if block, ok := p.chain.Block(hash); ok && block.Header.Height == h {
				return &AppliedBlock{Block: block}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, errors.New(errors.ErrTimedOut, "height %d not notarized within %s", h, deadline)
		case <-time.After(pollInterval):
		}
	}
}

func (p *Pacemaker) handleProposal(ctx context.Context, h model.BlockHeight, parentHash model.HashVal, senderPK string, prop *Proposal) {
	leader := p.cfg.Leader(h)
	if leader == nil || senderPK != string(leader) {
		p.logger.Debugf("[pacemaker] rejecting proposal at height %d: proposer mismatch", h)
		return
	}
	if prop.AbbrBlock.Header.Height != h {
		return
	}
	if prop.AbbrBlock.Header.Previous != parentHash {
		p.logger.Debugf("[pacemaker] rejecting proposal at height %d: does not extend LNC tip", h)
		return
	}

	// A participant without the full block body (only the AbbrBlock)
	// cannot vote yet; in this in-process build, the leader also holds
	// the full Chain, so AddProposal has already been satisfied via the
	// leader's own propose() call when self is the leader. Followers
	// fetch the block body via sync's GetAbbrBlock/mempool lookup before
	// this point in the full wiring (Module I).
	hash := prop.AbbrBlock.Header.Hash()

	voted, _, err := p.journal.Voted(p.cfg.Epoch, h)
	if err != nil {
		p.logger.Errorf("[pacemaker] reading vote journal: %v", err)
		return
	}
	if voted {
		return
	}

	if err := p.journal.RecordVote(p.cfg.Epoch, h, hash); err != nil {
		p.logger.Errorf("[pacemaker] recording vote journal: %v", err)
		return
	}

	vote := SignVote(p.cfg.SigningSK, hash)
	_ = p.fsm.Event(ctx, "vote")
	if err := p.gossip.Broadcast(ctx, p.cfg.SigningSK, p.cfg.SigningPK, uint64(time.Now().Unix()), KindVote, vote); err != nil {
		p.logger.Errorf("[pacemaker] broadcasting vote: %v", err)
	}
}

func txHashes(block *model.Block) []model.HashVal {
	out := make([]model.HashVal, len(block.Transactions))
	for i := range block.Transactions {
		out[i] = block.Transactions[i].HashNoSigs()
	}
	return out
}
