// Package sharedlog implements the replication engine (§4.5): it
// wires together the entry Log, the replication Ring, the Direct
// Stream transport, the Role state machine and the PID controller
// into leader selection, the append and incoming-ExchangeHeads paths,
// pruning negotiation, adaptive rebalance, role dissemination and the
// post-membership-change distribution pass.
package sharedlog

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orbas1/sharedlog/internal/dlog"
	"github.com/orbas1/sharedlog/internal/memstat"
	"github.com/orbas1/sharedlog/internal/pidctl"
	"github.com/orbas1/sharedlog/internal/ring"
	"github.com/orbas1/sharedlog/internal/role"
	"github.com/orbas1/sharedlog/internal/transport"
)

// CanReplicateFunc gates which identities may count toward
// min_replicas acknowledgement (§6 "canReplicate(pubkey, role) ->
// bool: optional admission gate").
type CanReplicateFunc func(pubkey []byte, k role.Kind) bool

// Config configures a SharedLog.
type Config struct {
	MinReplicas int
	MaxReplicas int // 0 = unbounded

	WaitForRoleMaturity      time.Duration // default 5s
	WaitForReplicatorTimeout time.Duration // default 9s
	PruneConfirmTimeout      time.Duration // default 10s
	RebalanceDebounceUnit    time.Duration // multiplied by peer_count, §4.5
	AutoDialRetry            time.Duration

	CanReplicate CanReplicateFunc
	Mem          memstat.Sampler
	PID          pidctl.Config

	Logger *logrus.Logger
}

func (c *Config) setDefaults() {
	if c.MinReplicas <= 0 {
		c.MinReplicas = 2
	}
	if c.WaitForRoleMaturity <= 0 {
		c.WaitForRoleMaturity = 5 * time.Second
	}
	if c.WaitForReplicatorTimeout <= 0 {
		c.WaitForReplicatorTimeout = 9 * time.Second
	}
	if c.PruneConfirmTimeout <= 0 {
		c.PruneConfirmTimeout = 10 * time.Second
	}
	if c.RebalanceDebounceUnit <= 0 {
		c.RebalanceDebounceUnit = 500 * time.Millisecond
	}
	if c.AutoDialRetry <= 0 {
		c.AutoDialRetry = 5 * time.Second
	}
	if c.Mem == nil {
		c.Mem = memstat.RuntimeSampler{}
	}
}

// SharedLog is one peer's replication engine instance over a single
// Log/topic.
type SharedLog struct {
	cfg Config
	log *dlog.Log
	t   *transport.Transport
	ro  *ring.Ring
	rm  *role.Machine
	pid *pidctl.Controller

	lg *logrus.Entry

	mu           sync.Mutex
	prevLeaders  map[string]map[string]bool // gid -> last distribution-pass leader set
	pendingPrune map[string]*pruneRound      // pruneRoundKey(gid) -> in-flight confirmation round
	lastRoleSeen map[string]time.Time        // peer -> timestamp of latest accepted role

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// New constructs a SharedLog bound to an already-constructed Log,
// Transport, Ring and role Machine (§4.5's collaborators, assembled by
// the caller — typically cmd/sharedlogctl's node bootstrap).
func New(l *dlog.Log, t *transport.Transport, ro *ring.Ring, rm *role.Machine, cfg Config) *SharedLog {
	cfg.setDefaults()
	lg := cfg.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	pidCfg := cfg.PID
	if pidCfg.TargetMemoryLimit == 0 {
		pidCfg = pidctl.DefaultConfig(512 * 1024 * 1024)
	}
	sl := &SharedLog{
		cfg:          cfg,
		log:          l,
		t:            t,
		ro:           ro,
		rm:           rm,
		pid:          pidctl.New(pidCfg),
		lg:           lg.WithField("component", "sharedlog").WithField("log", l.ID()),
		prevLeaders:  make(map[string]map[string]bool),
		pendingPrune: make(map[string]*pruneRound),
		lastRoleSeen: make(map[string]time.Time),
		closeCh:      make(chan struct{}),
	}

	self := t.Self()
	initial := rm.Current()
	ro.Upsert(ring.Range{
		PeerID:    self,
		Offset:    ring.HashToUnit(self),
		Factor:    initial.Factor,
		Timestamp: initial.Timestamp,
	})

	t.OnData(sl.onData)

	sl.wg.Add(3)
	go sl.roleEventLoop()
	go sl.rebalanceLoop()
	go sl.housekeepLoop()

	return sl
}

// Close shuts the engine down: transitions the role to Observer and
// broadcasts Goodbye, then stops background loops (§4.5 "terminal:
// close -> Observer (factor 0)").
func (sl *SharedLog) Close(ctx context.Context) {
	sl.closeOnce.Do(func() {
		sl.rm.Close(time.Now())
		close(sl.closeCh)
	})
	sl.wg.Wait()
	sl.log.Close()
	sl.ro.Remove(sl.t.Self())
}

func (sl *SharedLog) onData(ctx context.Context, fromNeighbor string, msg transport.DataMessage) {
	switch msg.PayloadKind {
	case transport.PayloadExchangeHeads:
		entries, err := decodeExchangeHeads(msg.Payload)
		if err != nil {
			sl.lg.WithError(err).Debug("dropping undecodable ExchangeHeads")
			return
		}
		sl.handleExchangeHeads(ctx, fromNeighbor, entries)
	case transport.PayloadRequestIPrune:
		hashes, err := decodeHashList(msg.Payload)
		if err != nil {
			sl.lg.WithError(err).Debug("dropping undecodable RequestIPrune")
			return
		}
		sl.handleRequestIPrune(ctx, msg.Header.Origin, hashes)
	case transport.PayloadResponseIPrune:
		hashes, err := decodeHashList(msg.Payload)
		if err != nil {
			sl.lg.WithError(err).Debug("dropping undecodable ResponseIPrune")
			return
		}
		sl.handleResponseIPrune(msg.Header.Origin, hashes)
	case transport.PayloadRole:
		rmsg, err := decodeRoleMessage(msg.Payload)
		if err != nil {
			sl.lg.WithError(err).Debug("dropping undecodable Role message")
			return
		}
		sl.handleRoleMessage(msg.Header.Origin, rmsg)
	}
}
