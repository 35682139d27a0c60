package sharedlog

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/transport"
)

// pruneRound tracks ResponseIPrune confirmations for one in-flight
// RequestIPrune batch (§4.5 "Pruning").
type pruneRound struct {
	gid        string
	hashes     map[string]cid.Cid
	confirmers map[string]map[string]bool // hash key -> set of confirming peers
	required   int
	deadline   time.Time
}

func pruneRoundKey(gid string) string { return "prune:" + gid }

// triggerPruneRequest broadcasts RequestIPrune for hashes and
// registers a confirmation round requiring effectiveMinReplicas
// ResponseIPrune replies per hash before the entries are actually
// removed locally (§4.5 "broadcasts RequestIPrune([hashes]) and waits
// for ResponseIPrune from at least min_replicas peers").
func (sl *SharedLog) triggerPruneRequest(gid string, effectiveMinReplicas int, hashes []cid.Cid) {
	if len(hashes) == 0 {
		return
	}
	key := pruneRoundKey(gid)

	sl.mu.Lock()
	round, exists := sl.pendingPrune[key]
	if !exists {
		round = &pruneRound{
			gid:        gid,
			hashes:     make(map[string]cid.Cid, len(hashes)),
			confirmers: make(map[string]map[string]bool, len(hashes)),
			required:   effectiveMinReplicas,
		}
		sl.pendingPrune[key] = round
	}
	round.deadline = time.Now().Add(sl.cfg.PruneConfirmTimeout)
	for _, h := range hashes {
		k := h.KeyString()
		round.hashes[k] = h
		if round.confirmers[k] == nil {
			round.confirmers[k] = make(map[string]bool)
		}
	}
	sl.mu.Unlock()

	body := encodeHashList(hashes)
	// Publish's Seek mode blocks until an Ack or until its context ends; run it
	// detached from the caller's context (often the unbounded context
	// of an inbound stream handler) so this fire-and-forget broadcast
	// can never stall the caller.
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), sl.cfg.PruneConfirmTimeout)
		defer cancel()
		if _, err := sl.t.Publish(bctx, nil, body, transport.PayloadRequestIPrune, transport.ModeSeek, 0); err != nil {
			sl.lg.WithError(err).WithField("gid", gid).Debug("RequestIPrune broadcast incomplete")
		}
	}()
}

// schedulePrune is the "keeping causal history only" variant: group
// added entries by gid and request pruning at each gid's current
// effective min_replicas.
func (sl *SharedLog) schedulePrune(added []*entry.Entry) {
	byGid := make(map[string][]cid.Cid)
	for _, e := range added {
		byGid[e.Gid] = append(byGid[e.Gid], e.Hash)
	}
	for gid, hashes := range byGid {
		effective := sl.effectiveMinReplicas(gid, 0)
		sl.triggerPruneRequest(gid, effective, hashes)
	}
}

// handleRequestIPrune responds with ResponseIPrune for every requested
// hash this peer confirms it is a leader for and actually holds
// (§4.5: "peers respond only if they confirm they are a leader and
// have the entry").
func (sl *SharedLog) handleRequestIPrune(ctx context.Context, from string, hashes []cid.Cid) {
	var confirmed []cid.Cid
	for _, h := range hashes {
		e, ok := sl.log.Get(h)
		if !ok {
			continue
		}
		if !sl.isSelfLeader(e.Gid, int(e.MinReplicas)) {
			continue
		}
		confirmed = append(confirmed, h)
	}
	if len(confirmed) == 0 {
		return
	}
	body := encodeHashList(confirmed)
	if _, err := sl.t.Publish(ctx, []string{from}, body, transport.PayloadResponseIPrune, transport.ModeSilent, 1); err != nil {
		sl.lg.WithError(err).WithField("peer", from).Debug("ResponseIPrune send failed")
	}
}

// handleResponseIPrune records one peer's confirmation and removes any
// hash that has reached its required confirmation count (§4.5 "After
// the required confirmations, remove entries locally").
func (sl *SharedLog) handleResponseIPrune(from string, hashes []cid.Cid) {
	sl.mu.Lock()
	var toRemove []cid.Cid
	for _, round := range sl.pendingPrune {
		for _, h := range hashes {
			k := h.KeyString()
			set, tracked := round.confirmers[k]
			if !tracked {
				continue
			}
			set[from] = true
			if len(set) >= round.required {
				toRemove = append(toRemove, round.hashes[k])
			}
		}
	}
	for _, round := range sl.pendingPrune {
		for k := range round.confirmers {
			if len(round.confirmers[k]) >= round.required {
				delete(round.confirmers, k)
				delete(round.hashes, k)
			}
		}
	}
	sl.mu.Unlock()

	for _, h := range toRemove {
		sl.log.Remove(h)
	}
	if len(toRemove) > 0 {
		sl.lg.WithField("count", len(toRemove)).Debug("pruned entries after confirmation quorum")
	}
}

// retryStalePrunes re-broadcasts RequestIPrune for rounds whose
// deadline has elapsed without full confirmation (§4.5 "Retry on
// timeout").
func (sl *SharedLog) retryStalePrunes() {
	now := time.Now()
	sl.mu.Lock()
	type retry struct {
		gid      string
		required int
		hashes   []cid.Cid
	}
	var retries []retry
	for key, round := range sl.pendingPrune {
		if now.Before(round.deadline) {
			continue
		}
		if len(round.hashes) == 0 {
			delete(sl.pendingPrune, key)
			continue
		}
		hashes := make([]cid.Cid, 0, len(round.hashes))
		for _, h := range round.hashes {
			hashes = append(hashes, h)
		}
		retries = append(retries, retry{gid: round.gid, required: round.required, hashes: hashes})
	}
	sl.mu.Unlock()

	for _, r := range retries {
		sl.triggerPruneRequest(r.gid, r.required, r.hashes)
	}
}
