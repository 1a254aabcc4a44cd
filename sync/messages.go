// Package sync implements the block-sync protocol of spec §4.H: the six
// RPC verbs a catching-up auditor pulls from a peer (GetSummary,
// GetAbbrBlock, GetSmtBranch, GetStakersRaw, GetLz4Blocks, SendTx) and the
// client-side catch-up loop that drives apply_block from them. The wire
// transport (grpc.ServiceDesc, stdcode codec) lives in package rpc;
// this package only knows the request/response shapes and the storage
// they're answered from.
package sync

import (
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/stores/smt"
)

// GetSummaryRequest carries no fields; every auditor asks for the current
// tip.
type GetSummaryRequest struct{}

func (r *GetSummaryRequest) EncodeStd(w *stdcode.Writer) {}
func (r *GetSummaryRequest) DecodeStd(rr *stdcode.Reader) error { return nil }

type GetSummaryResponse struct {
	Summary model.StateSummary
}

func (r *GetSummaryResponse) EncodeStd(w *stdcode.Writer) { r.Summary.EncodeStd(w) }
func (r *GetSummaryResponse) DecodeStd(rr *stdcode.Reader) error { return r.Summary.DecodeStd(rr) }

type GetAbbrBlockRequest struct {
	Height model.BlockHeight
}

func (r *GetAbbrBlockRequest) EncodeStd(w *stdcode.Writer) { w.Uvarint(uint64(r.Height)) }
func (r *GetAbbrBlockRequest) DecodeStd(rr *stdcode.Reader) error {
	h, err := rr.Uvarint()
	if err != nil {
		return err
	}
	r.Height = model.BlockHeight(h)
	return nil
}

type GetAbbrBlockResponse struct {
	AbbrBlock model.AbbrBlock
	Proof     model.ConsensusProof
}

func (r *GetAbbrBlockResponse) EncodeStd(w *stdcode.Writer) {
	r.AbbrBlock.EncodeStd(w)
	r.Proof.EncodeStd(w)
}

func (r *GetAbbrBlockResponse) DecodeStd(rr *stdcode.Reader) error {
	if err := r.AbbrBlock.DecodeStd(rr); err != nil {
		return err
	}
	return (&r.Proof).DecodeStd(rr)
}

// GetSmtBranchRequest asks for the value (and membership proof) of key in
// substate's SMT as of height (spec §4.H: "GetSmtBranch(h, substate,
// key)"). Key is already the raw SMT key (e.g. state.CoinKeyBytes,
// state.DenomKeyBytes, state.HistoryKeyBytes, or a bare 32-byte tx/stake
// hash), matching whatever package state's STF wrote it under.
type GetSmtBranchRequest struct {
	Height   model.BlockHeight
	Substate model.Substate
	Key      []byte
}

func (r *GetSmtBranchRequest) EncodeStd(w *stdcode.Writer) {
	w.Uvarint(uint64(r.Height))
	r.Substate.EncodeStd(w)
	w.Blob(r.Key)
}

func (r *GetSmtBranchRequest) DecodeStd(rr *stdcode.Reader) error {
	h, err := rr.Uvarint()
	if err != nil {
		return err
	}
	r.Height = model.BlockHeight(h)
	if err := (&r.Substate).DecodeStd(rr); err != nil {
		return err
	}
	key, err := rr.Blob()
	if err != nil {
		return err
	}
	r.Key = key
	return nil
}

type GetSmtBranchResponse struct {
	Value []byte
	Proof smt.CompressedProof
}

func (r *GetSmtBranchResponse) EncodeStd(w *stdcode.Writer) {
	w.Blob(r.Value)
	w.Fixed(r.Proof.ZeroBitmap[:])
	w.Blob(r.Proof.NonZero)
}

func (r *GetSmtBranchResponse) DecodeStd(rr *stdcode.Reader) error {
	v, err := rr.Blob()
	if err != nil {
		return err
	}
	r.Value = v

	bitmap, err := rr.Fixed(len(r.Proof.ZeroBitmap))
	if err != nil {
		return err
	}
	copy(r.Proof.ZeroBitmap[:], bitmap)

	nz, err := rr.Blob()
	if err != nil {
		return err
	}
	r.Proof.NonZero = nz
	return nil
}

type GetStakersRawRequest struct {
	Height model.BlockHeight
}

func (r *GetStakersRawRequest) EncodeStd(w *stdcode.Writer) { w.Uvarint(uint64(r.Height)) }
func (r *GetStakersRawRequest) DecodeStd(rr *stdcode.Reader) error {
	h, err := rr.Uvarint()
	if err != nil {
		return err
	}
	r.Height = model.BlockHeight(h)
	return nil
}

// StakeEntry is one (staking tx hash, StakeDoc) pair from the stakes SMT
// dump GetStakersRaw returns.
type StakeEntry struct {
	TxHash model.HashVal
	Doc    model.StakeDoc
}

type GetStakersRawResponse struct {
	Entries []StakeEntry
}

func (r *GetStakersRawResponse) EncodeStd(w *stdcode.Writer) {
	w.Uvarint(uint64(len(r.Entries)))
	for i := range r.Entries {
		w.Fixed(r.Entries[i].TxHash[:])
		r.Entries[i].Doc.EncodeStd(w)
	}
}

func (r *GetStakersRawResponse) DecodeStd(rr *stdcode.Reader) error {
	n, err := rr.Uvarint()
	if err != nil {
		return err
	}
	entries := make([]StakeEntry, n)
	for i := range entries {
		b, err := rr.Fixed(crypto.HashSize)
		if err != nil {
			return err
		}
		entries[i].TxHash = crypto.HashFromBytes(b)
		if err := entries[i].Doc.DecodeStd(rr); err != nil {
			return err
		}
	}
	r.Entries = entries
	return nil
}

// GetLz4BlocksRequest asks for the stored blocks from StartHeight whose
// uncompressed stdcode encoding fits in MaxBytes (at least one block when
// one exists; see buildBlockBatch), sent lz4-compressed (spec §4.H).
type GetLz4BlocksRequest struct {
	StartHeight model.BlockHeight
	MaxBytes    uint64
}

func (r *GetLz4BlocksRequest) EncodeStd(w *stdcode.Writer) {
	w.Uvarint(uint64(r.StartHeight))
	w.Uvarint(r.MaxBytes)
}

func (r *GetLz4BlocksRequest) DecodeStd(rr *stdcode.Reader) error {
	h, err := rr.Uvarint()
	if err != nil {
		return err
	}
	r.StartHeight = model.BlockHeight(h)
	mb, err := rr.Uvarint()
	if err != nil {
		return err
	}
	r.MaxBytes = mb
	return nil
}

// GetLz4BlocksResponse carries Compressed, the lz4 frame wrapping
// stdcode(BlockBatch) (see lz4.go): stdcode((blocks, proofs)) spanning
// [start_height, start_height+len) per spec §4.H.
type GetLz4BlocksResponse struct {
	Compressed []byte
}

func (r *GetLz4BlocksResponse) EncodeStd(w *stdcode.Writer) { w.Blob(r.Compressed) }
func (r *GetLz4BlocksResponse) DecodeStd(rr *stdcode.Reader) error {
	b, err := rr.Blob()
	if err != nil {
		return err
	}
	r.Compressed = b
	return nil
}

type SendTxRequest struct {
	Tx model.Transaction
}

func (r *SendTxRequest) EncodeStd(w *stdcode.Writer) { r.Tx.EncodeStd(w) }
func (r *SendTxRequest) DecodeStd(rr *stdcode.Reader) error { return (&r.Tx).DecodeStd(rr) }

type SendTxResponse struct {
	Accepted bool
}

func (r *SendTxResponse) EncodeStd(w *stdcode.Writer) { w.Bool(r.Accepted) }
func (r *SendTxResponse) DecodeStd(rr *stdcode.Reader) error {
	b, err := rr.Bool()
	if err != nil {
		return err
	}
	r.Accepted = b
	return nil
}
