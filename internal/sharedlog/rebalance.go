package sharedlog

import (
	"math"
	"time"

	"github.com/orbas1/sharedlog/internal/pidctl"
	"github.com/orbas1/sharedlog/internal/role"
)

// rebalanceLoop runs the adaptive-replicator PID tick on a debounced
// interval scaled by peer count (§4.5 "Rebalance (adaptive replicator
// mode)"): debounced by REBALANCE_DEBOUNCE_INTERVAL x peer_count.
func (sl *SharedLog) rebalanceLoop() {
	defer sl.wg.Done()
	for {
		interval := sl.rebalanceInterval()
		select {
		case <-sl.closeCh:
			return
		case <-time.After(interval):
			sl.tickRebalance()
		}
	}
}

func (sl *SharedLog) rebalanceInterval() time.Duration {
	peerCount := sl.ro.Len()
	if peerCount < 1 {
		peerCount = 1
	}
	return sl.cfg.RebalanceDebounceUnit * time.Duration(peerCount)
}

func (sl *SharedLog) tickRebalance() {
	cur := sl.rm.Current()
	if cur.Kind != role.AdaptiveReplicator {
		return
	}

	peerCount := sl.ro.Len()
	in := pidctl.Inputs{
		UsedMemory:         sl.cfg.Mem.Used(),
		CurrentFactor:      cur.Factor,
		TotalParticipation: sl.ro.TotalParticipation(),
		PeerCount:          peerCount,
		MinReplicas:        sl.cfg.MinReplicas,
	}
	next := sl.pid.Tick(in)

	if cur.Factor != 0 && math.Abs(next-cur.Factor)/cur.Factor <= 0.0001 {
		return
	}
	if cur.Factor == 0 && next == 0 {
		return
	}

	// UpdateAdaptiveFactor publishes the role change to roleEventLoop's
	// subscription, which performs the broadcast, ring update and
	// distribution pass common to every role transition (§4.5 "any role
	// change -> broadcast, ring update, distribution pass").
	updated, ok := sl.rm.UpdateAdaptiveFactor(next, time.Now())
	if !ok {
		return
	}
	sl.lg.WithField("factor", updated.Factor).Debug("rebalanced adaptive replication factor")
}
