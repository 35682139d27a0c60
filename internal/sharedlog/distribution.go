package sharedlog

import (
	"context"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/transport"
)

// runDistributionPass implements §4.5's "Distribution pass": after any
// membership change, recompute leaders for every gid in local heads,
// push ExchangeHeads to newly-added leaders, and mark local entries
// for pruning if this peer left the leader set — caching the previous
// leader set per gid for the next pass's diff.
func (sl *SharedLog) runDistributionPass(ctx context.Context) {
	heads := sl.log.Heads()
	byGid := make(map[string][]*entry.Entry)
	for _, h := range heads {
		byGid[h.Gid] = append(byGid[h.Gid], h)
	}

	self := sl.t.Self()

	sl.mu.Lock()
	prev := sl.prevLeaders
	sl.mu.Unlock()

	nextPrev := make(map[string]map[string]bool, len(byGid))

	for gid, gidHeads := range byGid {
		minReplicas := int(gidHeads[0].MinReplicas)
		for _, h := range gidHeads {
			if int(h.MinReplicas) > minReplicas {
				minReplicas = int(h.MinReplicas)
			}
		}

		leaders := sl.computeLeaders(gid, minReplicas)
		leaderSet := make(map[string]bool, len(leaders))
		amLeader := false
		for _, p := range leaders {
			leaderSet[p] = true
			if p == self {
				amLeader = true
			}
		}
		nextPrev[gid] = leaderSet

		previousSet := prev[gid]
		var newLeaders []string
		for _, p := range leaders {
			if p == self {
				continue
			}
			if !previousSet[p] {
				newLeaders = append(newLeaders, p)
			}
		}
		if len(newLeaders) > 0 {
			body := encodeExchangeHeads(gidHeads)
			if _, err := sl.t.Publish(ctx, newLeaders, body, transport.PayloadExchangeHeads, transport.ModeSilent, 1); err != nil {
				sl.lg.WithError(err).WithField("gid", gid).Debug("distribution-pass push to new leaders incomplete")
			}
		}

		wasLeader := previousSet[self]
		if wasLeader && !amLeader {
			// Left the leader set for gid: request pruning of whatever
			// heads we were holding for it.
			sl.opportunisticPrune(gid, minReplicas)
		}
	}

	sl.mu.Lock()
	sl.prevLeaders = nextPrev
	sl.mu.Unlock()
}
