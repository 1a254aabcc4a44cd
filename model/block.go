package model

import (
	"sort"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// Block is a full proposed/finalized block: a header plus the
// transactions that sealed to it and the proposer's policy choice for
// that height.
type Block struct {
	Header         Header
	Transactions   []Transaction
	ProposerAction *ProposerAction
}

func (b *Block) EncodeStd(w *stdcode.Writer) {
	b.Header.EncodeStd(w)
	w.Uvarint(uint64(len(b.Transactions)))
	for i := range b.Transactions {
		b.Transactions[i].EncodeStd(w)
	}
	w.Bool(b.ProposerAction != nil)
	if b.ProposerAction != nil {
		b.ProposerAction.EncodeStd(w)
	}
}

func (b *Block) DecodeStd(r *stdcode.Reader) error {
	if err := b.Header.DecodeStd(r); err != nil {
		return err
	}
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	b.Transactions = make([]Transaction, n)
	for i := range b.Transactions {
		if err := b.Transactions[i].DecodeStd(r); err != nil {
			return err
		}
	}
	hasAction, err := r.Bool()
	if err != nil {
		return err
	}
	if hasAction {
		var action ProposerAction
		if err := action.DecodeStd(r); err != nil {
			return err
		}
		b.ProposerAction = &action
	} else {
		b.ProposerAction = nil
	}
	return nil
}

// AbbrBlock is a block summarized to its header plus the set of tx
// hashes it includes; consensus gossips this instead of full blocks and
// participants reconcile missing transactions from the proposer.
type AbbrBlock struct {
	Header   Header
	TxHashes []HashVal
}

func (a *AbbrBlock) EncodeStd(w *stdcode.Writer) {
	a.Header.EncodeStd(w)
	w.Uvarint(uint64(len(a.TxHashes)))
	for _, h := range a.TxHashes {
		w.Fixed(h[:])
	}
}

func (a *AbbrBlock) DecodeStd(r *stdcode.Reader) error {
	if err := a.Header.DecodeStd(r); err != nil {
		return err
	}
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	a.TxHashes = make([]HashVal, n)
	for i := range a.TxHashes {
		b, err := r.Fixed(crypto.HashSize)
		if err != nil {
			return err
		}
		a.TxHashes[i] = crypto.HashFromBytes(b)
	}
	return nil
}

// ConsensusProof is the persisted notarization certificate for a finalized
// block: every signer's public key mapped to its signature over the
// block's header hash.
type ConsensusProof map[string][]byte

func (p ConsensusProof) EncodeStd(w *stdcode.Writer) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.Uvarint(uint64(len(keys)))
	for _, k := range keys {
		w.Blob([]byte(k))
		w.Blob(p[k])
	}
}

func (p *ConsensusProof) DecodeStd(r *stdcode.Reader) error {
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	out := make(ConsensusProof, n)
	for i := uint64(0); i < n; i++ {
		pk, err := r.Blob()
		if err != nil {
			return err
		}
		sig, err := r.Blob()
		if err != nil {
			return err
		}
		out[string(pk)] = sig
	}
	*p = out
	return nil
}

// Verify reports whether the proof's signers carry more than 2/3 of
// epoch e's active voting power over blockHash (spec §4.G.4).
func (p ConsensusProof) Verify(blockHash HashVal, stakes map[HashVal]*StakeDoc, e uint64) error {
	power := VotingPower(stakes, e)

	var sum float64
	for pkStr, sig := range p {
		pk := crypto.PublicKey(pkStr)
		if !crypto.Verify(pk, blockHash[:], sig) {
			continue
		}
		sum += power[pkStr]
	}

	if sum <= 2.0/3.0 {
		return errors.New(errors.ErrBadConsensusProof, "consensus proof carries only %.4f voting power", sum)
	}
	return nil
}
