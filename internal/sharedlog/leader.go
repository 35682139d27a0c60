package sharedlog

import (
	"context"
	"time"

	"github.com/orbas1/sharedlog/internal/ring"
)

// computeLeaders returns the deterministic leader set for gid under
// minReplicas (§4.5 "leaders are sample(hash_to_unit(g), r) on the
// current ring").
func (sl *SharedLog) computeLeaders(gid string, minReplicas int) []string {
	if minReplicas <= 0 {
		minReplicas = sl.cfg.MinReplicas
	}
	return sl.ro.Sample(ring.HashToUnit(gid), minReplicas)
}

// isSelfLeader reports whether this peer's id is in gid's leader set.
func (sl *SharedLog) isSelfLeader(gid string, minReplicas int) bool {
	self := sl.t.Self()
	for _, p := range sl.computeLeaders(gid, minReplicas) {
		if p == self {
			return true
		}
	}
	return false
}

// matureLeaders filters computeLeaders down to peers whose ring entry
// is old enough to be trusted (§4.5 "Maturity"). The local peer is
// always retained regardless of its own ring-entry age; only remote
// leader candidates must satisfy maturity before being dialed.
func (sl *SharedLog) matureLeaders(gid string, minReplicas int, now time.Time) []string {
	self := sl.t.Self()
	var out []string
	for _, p := range sl.computeLeaders(gid, minReplicas) {
		if p == self {
			out = append(out, p)
			continue
		}
		rg, ok := sl.ro.Get(p)
		if !ok {
			continue
		}
		if ring.IsMature(rg, now, sl.cfg.WaitForRoleMaturity) {
			out = append(out, p)
		}
	}
	return out
}

// waitForIsLeader blocks (polling on a short interval) until
// isSelfLeader(gid, effectiveMinReplicas) holds or ctx/the configured
// WaitForReplicatorTimeout elapses (§4.5 "wait until isLeader(gid,
// effective_min_replicas) returns true (with a timeout)").
func (sl *SharedLog) waitForIsLeader(ctx context.Context, gid string, effectiveMinReplicas int) bool {
	if sl.isSelfLeader(gid, effectiveMinReplicas) {
		return true
	}
	deadline := time.Now().Add(sl.cfg.WaitForReplicatorTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-sl.closeCh:
			return false
		case <-ticker.C:
			if sl.isSelfLeader(gid, effectiveMinReplicas) {
				return true
			}
			if time.Now().After(deadline) {
				return false
			}
		}
	}
}

// effectiveMinReplicas takes the max of min_replicas across the
// incoming batch for gid and any existing local heads sharing the
// same gid (§4.5 "take the max of min_replicas across new entries and
// existing heads with the same gid").
func (sl *SharedLog) effectiveMinReplicas(gid string, incomingMax uint32) int {
	best := int(incomingMax)
	for _, h := range sl.log.Heads() {
		if h.Gid == gid && int(h.MinReplicas) > best {
			best = int(h.MinReplicas)
		}
	}
	if best <= 0 {
		best = sl.cfg.MinReplicas
	}
	return best
}
