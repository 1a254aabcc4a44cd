// Package p2p is the node's libp2p transport: a gossipsub mesh plus
// Kademlia peer discovery, used by consensus's proposal/vote gossip
// (spec §4.G.6); sync traffic goes over gRPC, not this package. It knows nothing
// about Themelio's wire messages — callers hand it raw bytes per topic
// and get raw bytes back.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	golibp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	dRouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dUtil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// protocolID tags direct (non-gossip) streams opened by SendToPeer.
const protocolID = protocol.ID("/themelio-core/p2p/1.0.0")

// Handler processes one gossip message delivered on a topic.
type Handler func(ctx context.Context, msg []byte, from peer.ID)

// Config configures a Node. Listen/Advertise follow spec §6's CLI flags
// (--listen/--advertise/--bootstrap); PrivateKeyPath persists the node's
// libp2p identity across restarts.
type Config struct {
	ListenAddr    string
	PrivateKeyPath string
	Bootstrap     []string
	Advertise     bool
}

// Node wraps one libp2p host with a gossipsub router and DHT-based peer
// discovery.
type Node struct {
	cfg    Config
	host   host.Host
	pubsub *pubsub.PubSub
	logger ulogger.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic

	startTime time.Time
}

// New constructs a Node. The identity key is read from cfg.PrivateKeyPath
// if present, else generated and persisted there.
func New(logger ulogger.Logger, cfg Config) (*Node, error) {
	priv, err := loadOrGeneratePrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	opts := []golibp2p.Option{
		golibp2p.Identity(priv),
	}
	if cfg.ListenAddr != "" {
		opts = append(opts, golibp2p.ListenAddrStrings(cfg.ListenAddr))
	}

	h, err := golibp2p.New(opts...)
	if err != nil {
		return nil, errors.New(errors.ErrService, "constructing libp2p host", err)
	}

	ps, err := pubsub.NewGossipSub(context.Background(), h)
	if err != nil {
		return nil, errors.New(errors.ErrService, "constructing gossipsub router", err)
	}

	return &Node{
		cfg:       cfg,
		host:      h,
		pubsub:    ps,
		logger:    logger.New("p2p"),
		topics:    make(map[string]*pubsub.Topic),
		startTime: time.Now(),
	}, nil
}

// Start connects to the configured bootstrap peers, begins DHT-based
// discovery for topicNames, and registers the direct-stream handler.
func (n *Node) Start(ctx context.Context, topicNames ...string) error {
	n.host.SetStreamHandler(protocolID, n.streamHandler)

	if len(n.cfg.Bootstrap) > 0 {
		go n.maintainBootstrapPeers(ctx)
	}

	go func() {
		if err := n.discoverPeers(ctx, topicNames); err != nil {
			n.logger.Errorf("[p2p] peer discovery stopped: %v", err)
		}
	}()

	return nil
}

func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	for _, t := range n.topics {
		_ = t.Close()
	}
	n.mu.Unlock()
	return n.host.Close()
}

func (n *Node) HostID() peer.ID { return n.host.ID() }

// Join subscribes to topicName and calls handler for every message
// delivered from another peer, on a goroutine that runs until ctx is done
// or the subscription ends.
func (n *Node) Join(ctx context.Context, topicName string, handler Handler) error {
	topic, err := n.topicFor(topicName)
	if err != nil {
		return err
	}

	sub, err := topic.Subscribe()
	if err != nil {
		return errors.New(errors.ErrService, "subscribing to topic %s", topicName, err)
	}

	go func() {
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				n.logger.Debugf("[p2p] topic %s subscription ended: %v", topicName, err)
				return
			}
			if msg.ReceivedFrom == n.host.ID() {
				continue
			}
			handler(ctx, msg.Data, msg.ReceivedFrom)
		}
	}()

	return nil
}

// Publish broadcasts msg on topicName to every subscribed peer.
func (n *Node) Publish(ctx context.Context, topicName string, msg []byte) error {
	topic, err := n.topicFor(topicName)
	if err != nil {
		return err
	}
	if err := topic.Publish(ctx, msg); err != nil {
		return errors.New(errors.ErrPeerDisconnected, "publishing to topic %s", topicName, err)
	}
	return nil
}

// SendToPeer opens a direct stream to pid and writes msg. The receiving
// node's streamHandler reads the stream and logs how many bytes arrived;
// it does not pass them on to any other component.
func (n *Node) SendToPeer(ctx context.Context, pid peer.ID, msg []byte) error {
	if n.host.Network().Connectedness(pid) != network.Connected {
		if err := n.host.Connect(ctx, peer.AddrInfo{ID: pid}); err != nil {
			return errors.New(errors.ErrPeerDisconnected, "dialing peer %s", pid, err)
		}
	}

	st, err := n.host.NewStream(ctx, pid, protocolID)
	if err != nil {
		return errors.New(errors.ErrPeerDisconnected, "opening stream to peer %s", pid, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			n.logger.Errorf("[p2p] closing stream to %s: %v", pid, err)
		}
	}()

	if _, err := st.Write(msg); err != nil {
		return errors.New(errors.ErrPeerDisconnected, "writing to peer %s", pid, err)
	}
	return nil
}

func (n *Node) topicFor(topicName string) (*pubsub.Topic, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.topics[topicName]; ok {
		return t, nil
	}

	t, err := n.pubsub.Join(topicName)
	if err != nil {
		return nil, errors.New(errors.ErrService, "joining topic %s", topicName, err)
	}
	n.topics[topicName] = t
	return t, nil
}

func (n *Node) streamHandler(s network.Stream) {
	buf, err := io.ReadAll(s)
	if err != nil {
		_ = s.Reset()
		n.logger.Errorf("[p2p] reading direct stream: %v", err)
		return
	}
	_ = s.Close()
	if len(buf) > 0 {
		n.logger.Debugf("[p2p] received %d bytes on direct stream", len(buf))
	}
}

func (n *Node) maintainBootstrapPeers(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	connect := func() {
		for _, addr := range n.cfg.Bootstrap {
			info, err := peer.AddrInfoFromP2pAddr(multiaddr.StringCast(addr))
			if err != nil {
				n.logger.Errorf("[p2p] bad bootstrap address %s: %v", addr, err)
				continue
			}
			if n.host.Network().Connectedness(info.ID) == network.Connected {
				continue
			}
			if err := n.host.Connect(ctx, *info); err != nil {
				n.logger.Debugf("[p2p] bootstrap dial to %s failed: %v", addr, err)
			} else {
				n.logger.Infof("[p2p] connected to bootstrap peer %s", addr)
			}
		}
	}

	connect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connect()
		}
	}
}

// discoverPeers runs a Kademlia DHT alongside the host and continuously
// pulls in peers advertising topicNames, the same "pull+push" discipline
// spec §4.G.6's gossip relies on for mesh formation beyond the static
// bootstrap set.
func (n *Node) discoverPeers(ctx context.Context, topicNames []string) error {
	kadDHT, err := dht.New(ctx, n.host, dht.Mode(dht.ModeAutoServer))
	if err != nil {
		return errors.New(errors.ErrService, "constructing DHT", err)
	}
	if err := kadDHT.Bootstrap(ctx); err != nil {
		return errors.New(errors.ErrService, "bootstrapping DHT", err)
	}

	routingDiscovery := dRouting.NewRoutingDiscovery(kadDHT)

	if n.cfg.Advertise {
		for _, topicName := range topicNames {
			dUtil.Advertise(ctx, routingDiscovery, topicName)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		for _, topicName := range topicNames {
			addrs, err := routingDiscovery.FindPeers(ctx, topicName)
			if err != nil {
				n.logger.Errorf("[p2p] finding peers for topic %s: %v", topicName, err)
				continue
			}
			for addr := range addrs {
				if addr.ID == n.host.ID() {
					continue
				}
				if n.host.Network().Connectedness(addr.ID) == network.Connected {
					continue
				}
				if err := n.host.Connect(ctx, addr); err != nil {
					n.logger.Debugf("[p2p] discovery dial to %s failed: %v", addr.ID, err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

func loadOrGeneratePrivateKey(path string) (libp2pcrypto.PrivKey, error) {
	if path == "" {
		priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, errors.New(errors.ErrService, "generating transient p2p key", err)
		}
		return priv, nil
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		priv, err := libp2pcrypto.UnmarshalPrivateKey(raw)
		if err != nil {
			return nil, errors.New(errors.ErrConfiguration, "unmarshaling p2p key at %s", path, err)
		}
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.New(errors.ErrConfiguration, "reading p2p key at %s", path, err)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, errors.New(errors.ErrService, "generating p2p key", err)
	}
	rawKey, err := libp2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, errors.New(errors.ErrService, "marshaling p2p key", err)
	}
	//nolint:gosec // identity key, not a secret requiring 0600 in this context
	if err := os.WriteFile(path, rawKey, 0644); err != nil {
		return nil, errors.New(errors.ErrConfiguration, "writing p2p key to %s", path, err)
	}
	return priv, nil
}

// decodeHexEd25519PrivateKey parses a staker-config signing key supplied
// as hex (spec §6's staker config "signing_secret" field), for nodes that
// pin their libp2p identity to the same key material as their consensus
// signing key rather than a generated transport-only identity.
func decodeHexEd25519PrivateKey(hexKey string) (libp2pcrypto.PrivKey, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New(errors.ErrConfiguration, "decoding hex p2p key", err)
	}
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(b)
	if err != nil {
		return nil, errors.New(errors.ErrConfiguration, "unmarshaling ed25519 p2p key", err)
	}
	return priv, nil
}
