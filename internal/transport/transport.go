package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/sirupsen/logrus"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
	"github.com/orbas1/sharedlog/internal/routing"
)

// ProtocolID is the direct-stream wire protocol, mirroring the
// teacher's `protocolID = "synnergy-repl/1"` convention.
const ProtocolID protocol.ID = "/sharedlog/directstream/1.0.0"

// DataHandler is invoked once per de-duplicated DataMessage addressed
// to (or broadcast past) this peer.
type DataHandler func(ctx context.Context, fromNeighbor string, msg DataMessage)

// Config configures a Transport.
type Config struct {
	SeenSetSize    int
	RouteTTL       time.Duration
	AckTimeout     time.Duration
	AutoDialRetry  time.Duration
	DiscoveryTopic string
	Logger         *logrus.Logger

	// Signer and IdentityProvider back §3/§4.4's "signatures cover the
	// header...and the body": when set, every outgoing DataMessage/Ack
	// is signed and every incoming one is verified and dropped on
	// failure. Nil disables both, matching the teacher's posture of
	// only signing once a keystore identity exists.
	Signer           entry.Signer
	IdentityProvider entry.IdentityProvider
}

// Transport is the Direct Stream overlay (§4.4), layered over a
// libp2p host for duplex byte streams (§6 Transport collaborator) and
// gossipsub for topic discovery, exactly as the teacher's
// core/network.go wires libp2p.New + pubsub.NewGossipSub together.
type Transport struct {
	host host.Host
	ps   *pubsub.PubSub
	self string
	cfg  Config
	log  *logrus.Entry

	routes *routing.Table
	seen   *seenSet

	signer entry.Signer
	idProv entry.IdentityProvider

	mu           sync.Mutex
	pending      map[MsgID]*pendingAck
	dataHandler  DataHandler
	topics       map[string]*pubsub.Topic
	subs         map[string]*pubsub.Subscription
}

type pendingAck struct {
	targets  map[string]bool // target -> acked?
	waiting  int
	sendTime time.Time
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
}

// New wraps an existing libp2p host/pubsub pair as a Transport.
func New(h host.Host, ps *pubsub.PubSub, cfg Config) *Transport {
	if cfg.SeenSetSize <= 0 {
		cfg.SeenSetSize = 8192
	}
	if cfg.RouteTTL <= 0 {
		cfg.RouteTTL = 5 * time.Minute
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 9 * time.Second
	}
	if cfg.AutoDialRetry <= 0 {
		cfg.AutoDialRetry = 5 * time.Second
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	t := &Transport{
		host:    h,
		ps:      ps,
		self:    h.ID().String(),
		cfg:     cfg,
		log:     lg.WithField("component", "directstream"),
		routes:  routing.New(),
		seen:    newSeenSet(cfg.SeenSetSize),
		signer:  cfg.Signer,
		idProv:  cfg.IdentityProvider,
		pending: make(map[MsgID]*pendingAck),
		topics:  make(map[string]*pubsub.Topic),
		subs:    make(map[string]*pubsub.Subscription),
	}
	h.SetStreamHandler(ProtocolID, t.handleStream)
	return t
}

// Self returns this peer's own id string.
func (t *Transport) Self() string { return t.self }

// Routes exposes the routing table. Callers query it for reachability
// and also mutate it: the shared log evicts a departing neighbor's
// routes on Goodbye.
func (t *Transport) Routes() *routing.Table { return t.routes }

// OnData registers the callback invoked for every de-duplicated
// DataMessage.
func (t *Transport) OnData(h DataHandler) {
	t.mu.Lock()
	t.dataHandler = h
	t.mu.Unlock()
}

// Neighbors returns the directly connected peer ids.
func (t *Transport) Neighbors() []string {
	conns := t.host.Network().Peers()
	out := make([]string, 0, len(conns))
	for _, p := range conns {
		out = append(out, p.String())
	}
	return out
}

// Connect dials a peer by its multiaddr string (auto-dial and
// explicit connect share this path, §4.4 "Auto-dial").
func (t *Transport) Connect(ctx context.Context, addr string) error {
	pi, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("transport: invalid address: %w", err)
	}
	return t.host.Connect(ctx, *pi)
}

// Disconnect closes the connection to peerID and evicts it from the
// routing table (§3 "stale neighbors are evicted on disconnect").
func (t *Transport) Disconnect(peerID string) error {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return err
	}
	t.routes.EvictNeighbor(peerID)
	return t.host.Network().ClosePeer(pid)
}

// sendFrame opens a fresh stream to peerID and writes frame,
// half-closing afterward so the remote's read loop sees EOF.
func (t *Transport) sendFrame(ctx context.Context, peerID string, frame []byte) error {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return fmt.Errorf("transport: decode peer %q: %w", peerID, err)
	}
	s, err := t.host.NewStream(ctx, pid, ProtocolID)
	if err != nil {
		return fmt.Errorf("transport: new stream to %s: %w", peerID, err)
	}
	defer s.Close()
	if _, err := s.Write(frame); err != nil {
		return fmt.Errorf("transport: write to %s: %w", peerID, err)
	}
	return s.CloseWrite()
}

func (t *Transport) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer().String()
	data, err := io.ReadAll(s)
	if err != nil {
		t.log.WithError(err).WithField("peer", remote).Debug("stream read failed")
		return
	}
	msg, err := Decode(data)
	if err != nil {
		t.log.WithError(err).WithField("peer", remote).Debug("dropping undecodable frame")
		return
	}
	t.dispatch(context.Background(), remote, msg)
}

func (t *Transport) dispatch(ctx context.Context, viaNeighbor string, msg any) {
	switch m := msg.(type) {
	case DataMessage:
		if err := t.verifyHeader(m.Header, dataMessageBody(m)); err != nil {
			t.log.WithError(err).WithField("peer", viaNeighbor).Debug("dropping data message: signature verification failed")
			return
		}
		t.handleData(ctx, viaNeighbor, m)
	case Ack:
		if err := t.verifyHeader(m.Header, ackBody(m)); err != nil {
			t.log.WithError(err).WithField("peer", viaNeighbor).Debug("dropping ack: signature verification failed")
			return
		}
		t.handleAck(viaNeighbor, m)
	case Hello:
		t.log.WithField("peer", m.Header.Origin).Debug("hello")
	case Goodbye:
		t.routes.EvictNeighbor(m.Header.Origin)
		t.log.WithField("peer", m.Header.Origin).Debug("goodbye")
	}
}

// signHeader stamps h with a fresh signature over SignableBytes(h,
// body) when a Signer is configured; a no-op otherwise (§4.4's
// signature coverage is opt-in until a keystore identity exists).
func (t *Transport) signHeader(h *Header, body []byte) {
	if t.signer == nil {
		return
	}
	sig, err := t.signer.Sign(SignableBytes(*h, body))
	if err != nil {
		t.log.WithError(err).Warn("failed to sign outgoing header")
		return
	}
	h.Signatures = []HeaderSig{{Key: t.signer.PublicKey(), Sig: sig}}
}

// verifyHeader checks every signature on h against body, per §7's
// "header verification fails on receipt; message dropped silently". A
// no-op when no IdentityProvider is configured.
func (t *Transport) verifyHeader(h Header, body []byte) error {
	if t.idProv == nil {
		return nil
	}
	if len(h.Signatures) == 0 {
		return fmt.Errorf("transport: %w: no signatures", logerr.ErrSignatureInvalid)
	}
	signable := SignableBytes(h, body)
	for _, s := range h.Signatures {
		v := t.idProv.VerifierFor(s.Key)
		if v == nil || !v.Verify(s.Key, s.Sig, signable) {
			return logerr.ErrSignatureInvalid
		}
	}
	return nil
}
