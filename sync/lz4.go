package sync

import (
	"bytes"
	"context"

	"github.com/pierrec/lz4/v4"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/history"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// BlockBatch is the payload GetLz4Blocks compresses: a contiguous run of
// (block, consensus_proof) records starting at some height (spec §4.H:
// "lz4-compressed stdcode((blocks, proofs))").
type BlockBatch struct {
	StartHeight model.BlockHeight
	Records     []history.Record
}

func (b *BlockBatch) EncodeStd(w *stdcode.Writer) {
	w.Uvarint(uint64(b.StartHeight))
	w.Uvarint(uint64(len(b.Records)))
	for i := range b.Records {
		b.Records[i].EncodeStd(w)
	}
}

func (b *BlockBatch) DecodeStd(r *stdcode.Reader) error {
	h, err := r.Uvarint()
	if err != nil {
		return err
	}
	b.StartHeight = model.BlockHeight(h)

	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	records := make([]history.Record, n)
	for i := range records {
		if err := records[i].DecodeStd(r); err != nil {
			return err
		}
	}
	b.Records = records
	return nil
}

// buildBlockBatch reads contiguous blocks starting at startHeight from
// store until either the highest stored height or the point where one
// more block would push the batch's uncompressed stdcode encoding past
// maxBytes (lz4 only ever shrinks, so bounding the pre-compression size
// is a conservative, cheap-to-compute stand-in for bounding the
// compressed size directly). At least one block is always included when
// one exists, so a peer behind by a single giant block still makes
// progress.
func buildBlockBatch(ctx context.Context, store *history.Store, startHeight model.BlockHeight, maxBytes uint64) (*BlockBatch, error) {
	highest, have := store.Highest()
	if !have || startHeight > highest {
		return &BlockBatch{StartHeight: startHeight}, nil
	}

	batch := &BlockBatch{StartHeight: startHeight}
	for h := startHeight; h <= highest; h++ {
		block, proof, err := store.GetBlock(ctx, h)
		if err != nil {
			return nil, err
		}

		candidate := append(batch.Records, history.Record{Block: block, ConsensusProof: proof})
		if len(batch.Records) > 0 && uint64(len(stdcode.Marshal(&BlockBatch{StartHeight: startHeight, Records: candidate}))) > maxBytes {
			break
		}
		batch.Records = candidate
	}
	return batch, nil
}

// CompressBlocks builds the [start_height, ...] batch bounded by maxBytes
// and lz4-frame-compresses its stdcode encoding.
func CompressBlocks(ctx context.Context, store *history.Store, startHeight model.BlockHeight, maxBytes uint64) ([]byte, error) {
	batch, err := buildBlockBatch(ctx, store, startHeight, maxBytes)
	if err != nil {
		return nil, err
	}

	raw := stdcode.Marshal(batch)
	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(raw); err != nil {
		return nil, errors.New(errors.ErrInternal, "lz4-compressing block batch", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.New(errors.ErrInternal, "closing lz4 writer", err)
	}
	return out.Bytes(), nil
}

// DecompressBlocks reverses CompressBlocks.
func DecompressBlocks(compressed []byte) (*BlockBatch, error) {
	zr := lz4.NewReader(bytes.NewReader(compressed))
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(zr); err != nil {
		return nil, errors.New(errors.ErrCorrupt, "lz4-decompressing block batch", err)
	}

	var batch BlockBatch
	if err := stdcode.Unmarshal(raw.Bytes(), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}
