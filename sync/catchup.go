package sync

import (
	"context"
	"time"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// fetchTimeout bounds a single GetLz4Blocks round-trip (spec §4.H: "30 s
// timeout").
const fetchTimeout = 30 * time.Second

// chunkBytes is the request size an auditor asks a peer for per round
// (spec §4.H: "≤500 KB chunks").
const chunkBytes = maxLz4ChunkBytes

// PeerClient is the subset of the sync RPC surface the catch-up loop
// needs from a remote peer. Package rpc's generated client stub
// implements this against a live grpc.ClientConn.
type PeerClient interface {
	GetSummary(ctx context.Context, req *GetSummaryRequest) (*GetSummaryResponse, error)
	GetLz4Blocks(ctx context.Context, req *GetLz4BlocksRequest) (*GetLz4BlocksResponse, error)
}

// ApplyFunc drives the node's apply_block (spec §4.D.6) for one block
// pulled from a peer during catch-up.
type ApplyFunc func(ctx context.Context, block *model.Block, proof model.ConsensusProof) error

// Catchup implements the auditor catch-up loop of spec §4.H: ask peer for
// its summary; if its height exceeds localHeight, pull contiguous blocks
// via GetLz4Blocks in ≤500 KB chunks with a 30 s timeout per round,
// validate that each batch starts exactly where the last one left off,
// then apply every block in order. It returns the height reached once
// that equals the peer's reported height (at once if the peer is not
// ahead); a batch with no blocks before then is an ErrBadGateway error.
func Catchup(ctx context.Context, logger ulogger.Logger, peer PeerClient, localHeight model.BlockHeight, apply ApplyFunc) (model.BlockHeight, error) {
	log := logger.New("sync-catchup")

	summaryCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	summary, err := peer.GetSummary(summaryCtx, &GetSummaryRequest{})
	cancel()
	if err != nil {
		return localHeight, errors.New(errors.ErrBadGateway, "fetching peer summary", err)
	}

	peerHeight := summary.Summary.Height
	if peerHeight <= localHeight {
		return localHeight, nil
	}

	log.Infof("catching up from height %d to peer height %d", localHeight, peerHeight)

	next := localHeight + 1
	for next <= peerHeight {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		resp, err := peer.GetLz4Blocks(fetchCtx, &GetLz4BlocksRequest{StartHeight: next, MaxBytes: chunkBytes})
		cancel()
		if err != nil {
			return next - 1, errors.New(errors.ErrBadGateway, "fetching blocks from height %d", next, err)
		}

		batch, err := DecompressBlocks(resp.Compressed)
		if err != nil {
			return next - 1, err
		}
		if len(batch.Records) == 0 {
			return next - 1, errors.New(errors.ErrBadGateway, "peer returned no blocks for height %d though it claims height %d", next, peerHeight)
		}
		if batch.StartHeight != next {
			return next - 1, errors.New(errors.ErrBadGateway, "peer batch starts at height %d, expected %d", batch.StartHeight, next)
		}

		for i, rec := range batch.Records {
			wantHeight := next + model.BlockHeight(i)
			if rec.Block.Header.Height != wantHeight {
				return next - 1, errors.New(errors.ErrHeaderMismatch, "batch height gap: expected %d, got %d", wantHeight, rec.Block.Header.Height)
			}
			if err := apply(ctx, rec.Block, rec.ConsensusProof); err != nil {
				return next - 1, err
			}
			next = wantHeight + 1
		}

		log.Debugf("applied %d blocks, now at height %d", len(batch.Records), next-1)
	}

	return next - 1, nil
}
