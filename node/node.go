package node

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ordishs/go-utils/expiringmap"
	"golang.org/x/sync/errgroup"

	"github.com/themelio-labs/themelio-core/consensus"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/history"
	"github.com/themelio-labs/themelio-core/mempool"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/rpc"
	"github.com/themelio-labs/themelio-core/state"
	"github.com/themelio-labs/themelio-core/stores/cas"
	chainsync "github.com/themelio-labs/themelio-core/sync"
	"github.com/themelio-labs/themelio-core/ulogger"
	"github.com/themelio-labs/themelio-core/util/p2p"
)

// auditorSyncInterval is how often an auditor-mode node picks a random
// peer and runs the catch-up loop (spec §4.I step 2).
const auditorSyncInterval = 10 * time.Second

// peerQuarantine is how long a peer that just failed catch-up is skipped,
// the way the teacher's s3 blob store and legacy netsync manager both use
// an expiringmap as a short-lived "don't bother again yet" set.
const peerQuarantine = 30 * time.Second

// Node wires storage (history+CAS), mempool, the sync/rpc surfaces, and
// (in staker mode) a consensus Pacemaker into one running process. It is
// the concrete apply_block driver every other module's review comment
// pointed at: everything upstream of it is idle until Node calls it.
type Node struct {
	cfg    Config
	logger ulogger.Logger

	cas     cas.Store
	history *history.Store
	cache   *history.Cache
	mempool *mempool.Mempool

	mu     sync.RWMutex
	sealed *state.SealedState

	p2pNode    *p2p.Node
	syncServer *chainsync.Server
	rpcListen  *rpc.Listener
	notifier   *blockNotifier

	quarantinedPeers *expiringmap.ExpiringMap[string, struct{}]

	journal   *consensus.VoteJournal
	pacemaker *consensus.Pacemaker
}

// New materializes the current tip from storage (spec §4.I step 5:
// startup recovery) and wires every other component atop it.
func New(ctx context.Context, logger ulogger.Logger, cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger = logger.New("node")

	casURL, err := cfg.casURL()
	if err != nil {
		return nil, err
	}
	casStore, err := cas.NewStore(logger, casURL)
	if err != nil {
		return nil, err
	}

	histStore, err := history.New(logger, cfg.HistoryDir)
	if err != nil {
		return nil, err
	}
	cache := history.NewCache()

	sealed, err := histStore.Materialize(ctx, casStore, cfg.GenesisCfg, cache)
	if err != nil {
		return nil, err
	}

	mp, err := mempool.New(sealed.State.NextState())
	if err != nil {
		return nil, err
	}

	notifier, err := newBlockNotifier(logger, cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, err
	}

	p2pNode, err := p2p.New(logger, p2p.Config{
		ListenAddr:     cfg.P2PListenAddr,
		PrivateKeyPath: cfg.P2PPrivateKeyPath,
		Bootstrap:      cfg.Bootstrap,
		Advertise:      cfg.Advertise,
	})
	if err != nil {
		return nil, err
	}

	syncServer := chainsync.NewServer(logger, histStore, casStore, cache, cfg.GenesisCfg, mp, cfg.Network)

	n := &Node{
		cfg:              cfg,
		logger:           logger,
		cas:              casStore,
		history:          histStore,
		cache:            cache,
		mempool:          mp,
		sealed:           sealed,
		p2pNode:          p2pNode,
		syncServer:       syncServer,
		notifier:         notifier,
		quarantinedPeers: expiringmap.New[string, struct{}](peerQuarantine),
	}

	limited := newRateLimitedSync(syncServer, cfg.RPCRateLimitPerSec, cfg.RPCRateBurst)
	listener, err := rpc.Listen(logger, cfg.RPCListenAddr, limited)
	if err != nil {
		return nil, err
	}
	n.rpcListen = listener

	if cfg.Mode == ModeStaker {
		journal, err := consensus.OpenVoteJournal(cfg.VoteJournalDir)
		if err != nil {
			return nil, err
		}
		n.journal = journal

		epochCfg, err := n.buildEpochConfig(ctx, sealed)
		if err != nil {
			return nil, err
		}
		gossip := consensus.NewGossip(p2pNode, logger)
		n.pacemaker = consensus.NewPacemaker(epochCfg, journal, gossip, logger)
	}

	return n, nil
}

// buildEpochConfig derives a fresh EpochConfig for the epoch containing
// tip's next height, the way a staker rolls into a new epoch each time
// the active staker set changes (spec §4.G.1).
func (n *Node) buildEpochConfig(ctx context.Context, tip *state.SealedState) (*consensus.EpochConfig, error) {
	stakes, err := tip.State.AllActiveStakes(ctx)
	if err != nil {
		return nil, err
	}
	epoch := model.Epoch(tip.Header.Height + 1)

	return &consensus.EpochConfig{
		Network:   n.cfg.Network,
		Epoch:     epoch,
		Genesis:   tip,
		Forest:    n.cas,
		Stakes:    stakes,
		SigningPK: n.cfg.SigningPK,
		SigningSK: n.cfg.SigningSK,
		BuildBlock: n.buildBlock,
	}, nil
}

// buildBlock is the pacemaker's BuildBlockFunc: it seals the mempool's
// pending transactions atop tipHeader into a candidate Block with no
// policy nudge, the simplest "propose as many pending txs as fit" build
// strategy (spec §4.G.1's build_block(tip) hook leaves proposer policy up
// to the implementation).
func (n *Node) buildBlock(ctx context.Context, tipHeader *model.Header) (*model.Block, error) {
	tip := n.Tip()
	if tip.Header.Hash() != tipHeader.Hash() {
		return nil, errors.New(errors.ErrNotExtendingLNC, "buildBlock: mempool tip has moved past the LNC tip")
	}

	pending := n.mempool.PendingTransactions()
	txs := make([]model.Transaction, 0, len(pending))
	for _, hash := range pending {
		if tx, ok := n.mempool.LookupRecentTx(hash); ok {
			txs = append(txs, *tx)
		}
	}

	working := tip.State.NextState()
	applied := make([]*model.Transaction, 0, len(txs))
	for i := range txs {
		if err := working.ApplyTx(ctx, &txs[i]); err != nil {
			n.logger.Debugf("buildBlock: dropping tx %s: %v", txs[i].HashNoSigs(), err)
			continue
		}
		applied = append(applied, &txs[i])
	}

	action := &model.ProposerAction{FeeMultiplierDelta: 0, RewardDest: tip.Header.StakesHash}
	doscWork := state.TotalDoscWork(applied)
	sealed, err := state.Seal(ctx, working, tip.Header.Hash(), tip.Header, action, doscWork)
	if err != nil {
		return nil, err
	}

	block := &model.Block{Header: *sealed.Header, ProposerAction: action}
	block.Transactions = make([]model.Transaction, len(applied))
	for i, tx := range applied {
		block.Transactions[i] = *tx
	}
	return block, nil
}

// Run drives the node's main loop (spec §4.I): inbound RPC, the
// auditor/staker role loop, and startup recovery (already done by New).
// It blocks until ctx is cancelled or a task fails.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := n.p2pNode.Start(gctx, gossipTopicsFor(n.cfg.Mode)...); err != nil {
		return errors.New(errors.ErrService, "starting p2p node", err)
	}

	g.Go(func() error { return n.rpcListen.Serve(gctx) })
	g.Go(func() error { return serveHealth(gctx, n) })

	switch n.cfg.Mode {
	case ModeAuditor:
		g.Go(func() error { return n.auditorLoop(gctx) })
	case ModeStaker:
		g.Go(func() error { return n.stakerLoop(gctx) })
	}

	err := g.Wait()
	n.notifier.close()
	if err := n.history.Flush(context.Background()); err != nil {
		n.logger.Errorf("flushing history store on shutdown: %v", err)
	}
	return err
}

func gossipTopicsFor(mode Mode) []string {
	if mode == ModeStaker {
		return []string{"themelio-symphonia"}
	}
	return nil
}

// auditorLoop implements spec §4.I step 2: periodically pick a random
// peer and run sync.Catchup against it.
func (n *Node) auditorLoop(ctx context.Context) error {
	if len(n.cfg.PeerRPCAddrs) == 0 {
		n.logger.Warnf("auditor mode has no peer_rpc_addrs configured, catch-up disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(auditorSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.syncOnce(ctx)
		}
	}
}

func (n *Node) syncOnce(ctx context.Context) {
	addr, ok := n.pickPeer()
	if !ok {
		n.logger.Debugf("all configured peers are quarantined, skipping this round")
		return
	}

	client, err := rpc.Dial(addr)
	if err != nil {
		n.logger.Warnf("dialing peer %s: %v", addr, err)
		n.quarantinedPeers.Set(addr, struct{}{})
		return
	}
	defer client.Close()

	localHeight := n.Tip().Header.Height
	newHeight, err := chainsync.Catchup(ctx, n.logger, client, localHeight, n.ApplyBlock)
	if err != nil {
		n.logger.Warnf("catch-up against %s stalled at height %d: %v", addr, newHeight, err)
		n.quarantinedPeers.Set(addr, struct{}{})
		return
	}
	if newHeight > localHeight {
		n.logger.Infof("caught up from %s: %d -> %d", addr, localHeight, newHeight)
	}
}

// pickPeer returns a random configured peer that isn't currently
// quarantined after a recent failure, giving a failing peer time to
// recover instead of being retried every auditorSyncInterval tick.
func (n *Node) pickPeer() (string, bool) {
	candidates := make([]string, 0, len(n.cfg.PeerRPCAddrs))
	for _, addr := range n.cfg.PeerRPCAddrs {
		if _, quarantined := n.quarantinedPeers.Get(addr); !quarantined {
			candidates = append(candidates, addr)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// stakerLoop implements spec §4.I step 3: run the pacemaker height by
// height, feeding every notarized block through apply_block.
func (n *Node) stakerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		height := n.Tip().Header.Height + 1
		applied, err := n.pacemaker.RunHeight(ctx, height)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n.logger.Errorf("consensus round for height %d failed: %v", height, err)
			continue
		}

		if len(applied.Proof) == 0 {
			n.logger.Debugf("height %d resolved without a fresh consensus proof, skipping apply_block", height)
			continue
		}
		if err := n.ApplyBlock(ctx, applied.Block, applied.Proof); err != nil {
			n.logger.Errorf("apply_block failed for height %d: %v", height, err)
		}
	}
}

// Close releases every resource New opened, for callers that construct a
// Node without calling Run (tests, one-shot tooling).
func (n *Node) Close(ctx context.Context) error {
	var errs []error
	n.notifier.close()
	n.rpcListen.Stop()
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	n.mempool.Close()
	if err := n.p2pNode.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := n.cas.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
