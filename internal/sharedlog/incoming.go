package sharedlog

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
)

// handleExchangeHeads implements §4.5's "Incoming ExchangeHeads path":
// group by gid, wait for leadership at the effective min_replicas,
// join, and opportunistically prune when min_replicas shrank.
func (sl *SharedLog) handleExchangeHeads(ctx context.Context, fromNeighbor string, entries []*entry.Entry) {
	groups := make(map[string][]*entry.Entry)
	for _, e := range entries {
		groups[e.Gid] = append(groups[e.Gid], e)
	}

	for gid, batch := range groups {
		var incomingMax uint32
		for _, e := range batch {
			if e.MinReplicas > incomingMax {
				incomingMax = e.MinReplicas
			}
		}
		effective := sl.effectiveMinReplicas(gid, incomingMax)

		isLeader := sl.waitForIsLeader(ctx, gid, effective)
		hasAncestor := sl.hasAncestorOfAny(batch)

		if !isLeader && !hasAncestor {
			sl.lg.WithField("gid", gid).Debug("ignoring ExchangeHeads: not leader, no causal interest")
			continue
		}

		res, err := sl.log.Join(ctx, batch)
		if err != nil {
			sl.lg.WithError(err).WithField("gid", gid).Debug("join failed")
			continue
		}
		if len(res.Added) > 0 {
			sl.lg.WithField("gid", gid).WithField("added", len(res.Added)).Debug("joined incoming heads")
		}

		if !isLeader && hasAncestor {
			// Keeping causal history only: schedule for pruning since
			// we are not obligated to retain these entries long-term.
			sl.schedulePrune(res.Added)
			continue
		}

		sl.opportunisticPrune(gid, effective)
	}
}

// hasAncestorOfAny reports whether the local log already holds any
// entry referenced by batch's Next/Refs links — i.e. we have causal
// interest even if we are not a leader (§4.5 "still join it to keep
// causal history").
func (sl *SharedLog) hasAncestorOfAny(batch []*entry.Entry) bool {
	for _, e := range batch {
		for _, n := range e.Next {
			if _, ok := sl.log.Get(n); ok {
				return true
			}
		}
		for _, r := range e.Refs {
			if _, ok := sl.log.Get(r); ok {
				return true
			}
		}
	}
	return false
}

// opportunisticPrune implements §4.5's "if the new min_replicas is
// lower than existing, opportunistically prune entries no longer
// covered": a shrunk effective min_replicas shrinks gid's leader set,
// so a peer that falls out of that smaller set requests pruning of
// the heads it was holding for gid exactly as the general pruning
// path does.
func (sl *SharedLog) opportunisticPrune(gid string, effective int) {
	if sl.isSelfLeader(gid, effective) {
		return
	}
	var hashes []cid.Cid
	for _, h := range sl.log.Heads() {
		if h.Gid == gid {
			hashes = append(hashes, h.Hash)
		}
	}
	if len(hashes) == 0 {
		return
	}
	sl.triggerPruneRequest(gid, effective, hashes)
}
