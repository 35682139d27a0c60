package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orbas1/sharedlog/internal/config"
	"github.com/orbas1/sharedlog/internal/control"
	"github.com/orbas1/sharedlog/internal/dlog"
	"github.com/orbas1/sharedlog/internal/keystore"
	"github.com/orbas1/sharedlog/internal/memstat"
	"github.com/orbas1/sharedlog/internal/metrics"
	"github.com/orbas1/sharedlog/internal/pidctl"
	"github.com/orbas1/sharedlog/internal/ring"
	"github.com/orbas1/sharedlog/internal/role"
	"github.com/orbas1/sharedlog/internal/sharedlog"
	"github.com/orbas1/sharedlog/internal/transport"
)

// mdnsNotifee auto-dials peers discovered on the local network,
// mirroring core/network.go's Node.HandlePeerFound.
type mdnsNotifee struct {
	self string
	t    *transport.Transport
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID.String() == n.self {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	addr := fmt.Sprintf("%s/p2p/%s", info.Addrs[0].String(), info.ID.String())
	if err := n.t.Connect(ctx, addr); err != nil {
		logrus.WithError(err).WithField("peer", info.ID.String()).Warn("mdns auto-dial failed")
	}
}

// nodeCmd runs a full peer: libp2p host + gossipsub, the replication
// engine and its control socket, blocking until SIGINT/SIGTERM exactly
// as cmd/cli/bootstrap_node.go's bootStart does.
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a shared-log peer until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		lv, err := logrus.ParseLevel(viper.GetString("logging.level"))
		if err != nil {
			lv = logrus.InfoLevel
		}
		logrus.SetLevel(lv)

		return runNode(cmd.Context(), cfg)
	},
}

func runNode(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		return fmt.Errorf("node: libp2p host: %w", err)
	}
	defer h.Close()

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return fmt.Errorf("node: gossipsub: %w", err)
	}

	id, err := keystore.CreateKey()
	if err != nil {
		return fmt.Errorf("node: identity: %w", err)
	}
	boxEnc := &keystore.BoxEncryptor{Sender: id}

	t := transport.New(h, ps, transport.Config{
		Logger:           logrus.StandardLogger(),
		Signer:           id,
		IdentityProvider: keystore.SingleVerifierProvider{},
	})

	mdns.NewMdnsService(h, cfg.DiscoveryTag, &mdnsNotifee{self: h.ID().String(), t: t})
	for _, addr := range cfg.BootstrapPeers {
		if err := t.Connect(ctx, addr); err != nil {
			logrus.WithError(err).WithField("addr", addr).Warn("bootstrap dial failed")
		}
	}

	l := dlog.New(h.ID().String(), dlog.Options{
		Signer:           id,
		IdentityProvider: keystore.SingleVerifierProvider{},
		BlockStore:       dlog.NewMemBlockStore(),
		Encryptor:        boxEnc,
		Logger:           logrus.StandardLogger(),
	})

	ro := ring.New()

	var initial role.Role
	switch cfg.Role.Type {
	case "observer":
		initial = role.Role{Kind: role.Observer, Timestamp: time.Now()}
	case "replicator":
		initial = role.Role{Kind: role.Replicator, Factor: cfg.Role.Factor, Timestamp: time.Now()}
	default:
		initial = role.Role{
			Kind:      role.AdaptiveReplicator,
			Factor:    cfg.Role.Factor,
			Limits:    role.Limits{MemoryLimit: cfg.Role.MemoryLimit},
			Timestamp: time.Now(),
		}
	}
	rm := role.New(initial)

	memLimit := cfg.TargetMemoryLimit
	if memLimit == 0 {
		memLimit = cfg.Role.MemoryLimit
	}

	sl := sharedlog.New(l, t, ro, rm, sharedlog.Config{
		MinReplicas: cfg.Replicas.Min,
		MaxReplicas: cfg.Replicas.Max,
		Mem:         memstat.RuntimeSampler{},
		PID:         pidctl.DefaultConfig(memLimit),
		Logger:      logrus.StandardLogger(),
	})
	defer sl.Close(context.Background())

	reg := prometheus.NewRegistry()
	mset := metrics.NewRegistry(reg)
	go collectMetrics(ctx, mset, ro, rm, t)

	ctrl := control.New(sl, t, ro, rm, l, logrus.StandardLogger())
	go func() {
		if err := ctrl.Serve(ctx, cfg.ControlAddr); err != nil {
			logrus.WithError(err).Warn("control server stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"self":         h.ID().String(),
		"listen_addr":  cfg.ListenAddr,
		"control_addr": cfg.ControlAddr,
	}).Info("shared-log node started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logrus.Info("shutting down")
	return nil
}

func collectMetrics(ctx context.Context, m *metrics.Registry, ro *ring.Ring, rm *role.Machine, t *transport.Transport) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RingFactor.Set(rm.Current().Factor)
			m.RingPeerCount.Set(float64(ro.Len()))
			m.RouteTableSize.Set(float64(len(t.Neighbors())))
		}
	}
}
