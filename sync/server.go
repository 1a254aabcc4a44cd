package sync

import (
	"context"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/history"
	"github.com/themelio-labs/themelio-core/mempool"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/stores/cas"
	"github.com/themelio-labs/themelio-core/stores/smt"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// maxLz4ChunkBytes bounds one GetLz4Blocks reply (spec §4.H: "≤500 KB
// chunks"). A caller-supplied MaxBytes above this is clamped down to it.
const maxLz4ChunkBytes = 500 * 1024

// Server answers the six read-only verbs of spec §4.H against a node's
// durable storage — it never touches consensus directly, since every
// block it can see has already been persisted by apply_block (spec
// §4.D.6) by the time an auditor asks about it.
type Server struct {
	history    *history.Store
	cas        cas.Store
	cache      *history.Cache
	genesisCfg *state.GenesisConfig
	mempool    *mempool.Mempool
	network    model.NetworkID
	logger     ulogger.Logger
}

// NewServer wires a sync Server to the node's storage and mempool.
func NewServer(logger ulogger.Logger, store *history.Store, casStore cas.Store, cache *history.Cache, genesisCfg *state.GenesisConfig, mp *mempool.Mempool, network model.NetworkID) *Server {
	return &Server{
		history:    store,
		cas:        casStore,
		cache:      cache,
		genesisCfg: genesisCfg,
		mempool:    mp,
		network:    network,
		logger:     logger.New("sync"),
	}
}

func (s *Server) tipSealed(ctx context.Context) (*state.SealedState, model.BlockHeight, error) {
	highest, have := s.history.Highest()
	if !have {
		highest = 0
	}
	sealed, err := s.history.MaterializeTo(ctx, s.cas, s.genesisCfg, s.cache, highest)
	if err != nil {
		return nil, 0, err
	}
	return sealed, highest, nil
}

// GetSummary answers spec §4.H's "GetSummary() -> {network, height, header,
// consensus_proof}" with the node's current tip.
func (s *Server) GetSummary(ctx context.Context, _ *GetSummaryRequest) (*GetSummaryResponse, error) {
	sealed, highest, err := s.tipSealed(ctx)
	if err != nil {
		return nil, err
	}

	var proof model.ConsensusProof
	if highest > 0 {
		_, p, err := s.history.GetBlock(ctx, highest)
		if err != nil {
			return nil, err
		}
		proof = p
	}

	return &GetSummaryResponse{Summary: model.StateSummary{
		Network:        s.network,
		Height:         sealed.Header.Height,
		Header:         *sealed.Header,
		ConsensusProof: proof,
	}}, nil
}

// GetAbbrBlock answers "GetAbbrBlock(h) -> (AbbrBlock, ConsensusProof)".
func (s *Server) GetAbbrBlock(ctx context.Context, req *GetAbbrBlockRequest) (*GetAbbrBlockResponse, error) {
	block, proof, err := s.history.GetBlock(ctx, req.Height)
	if err != nil {
		return nil, err
	}

	hashes := make([]model.HashVal, len(block.Transactions))
	for i := range block.Transactions {
		hashes[i] = block.Transactions[i].HashNoSigs()
	}

	return &GetAbbrBlockResponse{
		AbbrBlock: model.AbbrBlock{Header: block.Header, TxHashes: hashes},
		Proof:     proof,
	}, nil
}

// rootFor picks the SMT root of sealed matching substate.
func rootFor(sealed *state.SealedState, substate model.Substate) (crypto.Hash, error) {
	switch substate {
	case model.SubstateHistory:
		return sealed.State.HistoryRoot, nil
	case model.SubstateCoins:
		return sealed.State.CoinsRoot, nil
	case model.SubstateTransactions:
		return sealed.State.TransactionsRoot, nil
	case model.SubstatePools:
		return sealed.State.PoolsRoot, nil
	case model.SubstateStakes:
		return sealed.State.StakesRoot, nil
	default:
		return crypto.ZeroHash, errors.New(errors.ErrBadRequest, "unknown substate %d", substate)
	}
}

// GetSmtBranch answers "GetSmtBranch(h, substate, key) -> (value,
// compressed_proof)" against the state as of height h, replaying forward
// from the nearest checkpoint if h isn't the current tip.
func (s *Server) GetSmtBranch(ctx context.Context, req *GetSmtBranchRequest) (*GetSmtBranchResponse, error) {
	sealed, err := s.history.MaterializeTo(ctx, s.cas, s.genesisCfg, s.cache, req.Height)
	if err != nil {
		return nil, err
	}
	root, err := rootFor(sealed, req.Substate)
	if err != nil {
		return nil, err
	}

	value, proof, err := smt.Get(ctx, s.cas, root, req.Key)
	if err != nil {
		return nil, err
	}

	return &GetSmtBranchResponse{Value: value, Proof: proof.Compress()}, nil
}

// GetStakersRaw answers "GetStakersRaw(h) -> SMT dump of stakes at height
// h" by walking the whole stakes tree. Only ever called by an auditor
// bootstrapping its own voting-power view, never per-transaction.
func (s *Server) GetStakersRaw(ctx context.Context, req *GetStakersRawRequest) (*GetStakersRawResponse, error) {
	sealed, err := s.history.MaterializeTo(ctx, s.cas, s.genesisCfg, s.cache, req.Height)
	if err != nil {
		return nil, err
	}

	var entries []StakeEntry
	err = smt.Walk(ctx, s.cas, sealed.State.StakesRoot, func(key, value []byte) error {
		var doc model.StakeDoc
		if err := stdcode.Unmarshal(value, &doc); err != nil {
			return err
		}
		entries = append(entries, StakeEntry{TxHash: crypto.HashFromBytes(key), Doc: doc})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &GetStakersRawResponse{Entries: entries}, nil
}

// GetLz4Blocks answers "GetLz4Blocks(start_height, max_bytes) ->
// lz4-compressed stdcode((blocks, proofs))", clamping max_bytes to the
// per-chunk ceiling the catch-up loop expects.
func (s *Server) GetLz4Blocks(ctx context.Context, req *GetLz4BlocksRequest) (*GetLz4BlocksResponse, error) {
	maxBytes := req.MaxBytes
	if maxBytes == 0 || maxBytes > maxLz4ChunkBytes {
		maxBytes = maxLz4ChunkBytes
	}

	compressed, err := CompressBlocks(ctx, s.history, req.StartHeight, maxBytes)
	if err != nil {
		return nil, err
	}
	return &GetLz4BlocksResponse{Compressed: compressed}, nil
}

// SendTx answers "SendTx(tx) -> submit to mempool".
func (s *Server) SendTx(ctx context.Context, req *SendTxRequest) (*SendTxResponse, error) {
	err := s.mempool.ApplyTransaction(ctx, &req.Tx)
	if err != nil {
		s.logger.Debugf("rejected submitted tx %s: %v", req.Tx.HashNoSigs(), err)
		return &SendTxResponse{Accepted: false}, nil
	}
	return &SendTxResponse{Accepted: true}, nil
}
