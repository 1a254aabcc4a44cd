package consensus

import (
	"context"
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/stdcode"
	"github.com/themelio-labs/themelio-core/ulogger"
	"github.com/themelio-labs/themelio-core/util/p2p"
)

// gossipTopic is the single pubsub topic this epoch's consensus instance
// gossips Envelopes over (spec §4.G.6).
const gossipTopic = "themelio-symphonia"

// wireMessage is what actually crosses the wire: an Envelope plus the
// MessageKind tag a receiver needs to decode its Body.
type wireMessage struct {
	Kind     MessageKind
	Envelope Envelope
}

func (w *wireMessage) EncodeStd(wr *stdcode.Writer) {
	wr.U8(uint8(w.Kind))
	w.Envelope.EncodeStd(wr)
}

func (w *wireMessage) DecodeStd(r *stdcode.Reader) error {
	k, err := r.U8()
	if err != nil {
		return err
	}
	w.Kind = MessageKind(k)
	return w.Envelope.DecodeStd(r)
}

// Delivery is one authenticated, decoded message handed up to the
// pacemaker.
type Delivery struct {
	SenderPK string
	Kind     MessageKind
	Message  interface{} // *Proposal, *Vote, *GetConfirm, or *ConfirmResp
}

// Gossip is the consensus-specific envelope discipline layered over the
// shared p2p transport: per-sender sliding-window sequence tracking (so
// a replayed or out-of-order envelope is dropped) and delivery ordering
// that always surfaces Proposals before Votes within a batch (spec
// §4.G.6: "reconcile via (sender -> last_seq)... Proposals sorted before
// Votes").
type Gossip struct {
	node   *p2p.Node
	logger ulogger.Logger

	mu      sync.Mutex
	lastSeq map[string]uint64

	seqCounter uint64
}

// NewGossip wires a Gossip instance atop an already-started p2p.Node.
func NewGossip(node *p2p.Node, logger ulogger.Logger) *Gossip {
	return &Gossip{
		node:    node,
		logger:  logger.New("gossip"),
		lastSeq: make(map[string]uint64),
	}
}

// NextSequence returns this sender's next message sequence number,
// monotonically increasing and seeded from wall-clock seconds so a
// restarted process's sequence never regresses behind what peers have
// already seen from it (spec §4.G.2: "sequence initialized to wall-clock
// seconds").
func (g *Gossip) NextSequence(now uint64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seqCounter < now {
		g.seqCounter = now
	}
	g.seqCounter++
	return g.seqCounter
}

// Start joins the gossip topic and forwards authenticated, freshly
// sequenced messages to onDeliver. Batches received in a single pubsub
// tick are not literally coalesced (gossipsub delivers one message at a
// time), so "Proposals before Votes" ordering is enforced by the
// pacemaker draining a short buffer through Drain instead; Start simply
// feeds that buffer.
func (g *Gossip) Start(ctx context.Context, buf *DeliveryBuffer) error {
	return g.node.Join(ctx, gossipTopic, func(ctx context.Context, raw []byte, from peer.ID) {
		var wm wireMessage
		if err := stdcode.Unmarshal(raw, &wm); err != nil {
			g.logger.Debugf("[gossip] dropping malformed message from %s: %v", from, err)
			return
		}
		if !wm.Envelope.Verify() {
			g.logger.Debugf("[gossip] dropping badly signed message from %s", from)
			return
		}

		senderPK := string(wm.Envelope.SenderPK)

		g.mu.Lock()
		if last, ok := g.lastSeq[senderPK]; ok && wm.Envelope.Sequence <= last {
			g.mu.Unlock()
			return // stale or replayed
		}
		g.lastSeq[senderPK] = wm.Envelope.Sequence
		g.mu.Unlock()

		msg, err := decodeBody(wm.Kind, wm.Envelope.Body)
		if err != nil {
			g.logger.Debugf("[gossip] dropping undecodable body from %s: %v", from, err)
			return
		}

		buf.Push(Delivery{SenderPK: senderPK, Kind: wm.Kind, Message: msg})
	})
}

// Broadcast signs body under kind and publishes it to every peer.
func (g *Gossip) Broadcast(ctx context.Context, sk, pk []byte, now uint64, kind MessageKind, enc stdcode.Encoder) error {
	_, body := encodeBody(kind, enc)
	seq := g.NextSequence(now)
	env := SignEnvelope(sk, pk, seq, body)

	wm := &wireMessage{Kind: kind, Envelope: *env}
	if err := g.node.Publish(ctx, gossipTopic, stdcode.Marshal(wm)); err != nil {
		return errors.New(errors.ErrPeerDisconnected, "broadcasting consensus message", err)
	}
	return nil
}

// LastSeqFor returns the last sequence number seen from sender, for
// building the (sender -> last_seq) reconciliation summary spec §4.G.6
// names.
func (g *Gossip) LastSeqFor(senderPK string) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seq, ok := g.lastSeq[senderPK]
	return seq, ok
}

// DeliveryBuffer accumulates Deliveries between pacemaker polls and
// drains them with Proposals sorted ahead of Votes (spec §4.G.6), so a
// height's leader proposal is always processed before any votes on it
// that happened to arrive in the same tick.
type DeliveryBuffer struct {
	mu    sync.Mutex
	items []Delivery
}

func (b *DeliveryBuffer) Push(d Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, d)
}

// Drain returns and clears every buffered delivery, Proposals first.
func (b *DeliveryBuffer) Drain() []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind == KindProposal && out[j].Kind != KindProposal
	})
	return out
}
