package node

import (
	"context"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
)

// ApplyBlock implements spec §4.D.6's apply_block: replay the block's
// transactions atop the current tip, reseal, and check the result
// matches exactly what was claimed before anything is persisted.
func (n *Node) ApplyBlock(ctx context.Context, block *model.Block, cproof model.ConsensusProof) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	tip := n.sealed
	if block.Header.Height != tip.Header.Height+1 {
		return errors.New(errors.ErrWrongHeight, "apply_block: block at height %d does not extend tip at %d", block.Header.Height, tip.Header.Height)
	}

	preBlockStakes, err := tip.State.AllActiveStakes(ctx)
	if err != nil {
		return errors.New(errors.ErrInternal, "reading active stakes before apply_block", err)
	}

	working := tip.State.NextState()
	txs := make([]*model.Transaction, len(block.Transactions))
	for i := range block.Transactions {
		txs[i] = &block.Transactions[i]
	}
	if err := working.ApplyTxBatch(ctx, txs); err != nil {
		return err
	}

	doscWork := state.TotalDoscWork(txs)
	sealed, err := state.Seal(ctx, working, tip.Header.Hash(), tip.Header, block.ProposerAction, doscWork)
	if err != nil {
		return err
	}

	if sealed.Header.Hash() != block.Header.Hash() {
		return errors.New(errors.ErrHeaderMismatch, "apply_block: resealed header does not match the proposed block at height %d", block.Header.Height)
	}

	epoch := model.Epoch(block.Header.Height)
	if err := cproof.Verify(block.Header.Hash(), preBlockStakes, epoch); err != nil {
		return err
	}

	if err := n.history.InsertBlock(ctx, block.Header.Height, block, cproof); err != nil {
		return err
	}
	if err := n.history.Flush(ctx); err != nil {
		return err
	}

	if err := n.mempool.Rebase(sealed.State.NextState()); err != nil {
		return errors.New(errors.ErrInternal, "rebasing mempool onto height %d", block.Header.Height, err)
	}

	n.cache.Put(block.Header.Height, sealed)
	n.sealed = sealed

	n.logger.Infof("applied block %d (hash %s, %d txs)", block.Header.Height, block.Header.Hash(), len(block.Transactions))
	n.notifier.publish(sealed.Header)

	return nil
}

// Tip returns the node's current SealedState.
func (n *Node) Tip() *state.SealedState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sealed
}
