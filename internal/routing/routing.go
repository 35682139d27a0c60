// Package routing implements the per-peer routing table (§3 Route,
// §4.4 "Route learning"): a (target) -> [(next-hop, rtt)] map learned
// from ACKs traveling back from targets, used by the direct stream to
// pick shortest known paths.
package routing

import (
	"sort"
	"sync"
	"time"
)

// NextHop is one candidate path to a target via a directly connected
// neighbor.
type NextHop struct {
	Peer     string
	RTT      time.Duration
	LearnedAt time.Time
}

// Table is the per-peer routing table. Like the ring, it is owned
// exclusively by its event loop (§5); callers read a consistent
// snapshot.
type Table struct {
	mu     sync.RWMutex
	routes map[string][]NextHop // target -> hops, sorted by RTT ascending
}

// New returns an empty routing table.
func New() *Table {
	return &Table{routes: make(map[string][]NextHop)}
}

// Learn records that target is reachable via hop with the given RTT
// (§4.4: "on receiving an ACK from target via in_link, record in_link
// as a neighbor reaching target with RTT = now - send_time"). Multiple
// next-hops per target are retained, sorted by RTT; the primary is
// the minimum.
func (t *Table) Learn(target, hop string, rtt time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hops := t.routes[target]
	found := false
	for i := range hops {
		if hops[i].Peer == hop {
			hops[i].RTT = rtt
			hops[i].LearnedAt = now
			found = true
			break
		}
	}
	if !found {
		hops = append(hops, NextHop{Peer: hop, RTT: rtt, LearnedAt: now})
	}
	sort.Slice(hops, func(i, j int) bool { return hops[i].RTT < hops[j].RTT })
	t.routes[target] = hops
}

// Primary returns the lowest-RTT known next-hop for target.
func (t *Table) Primary(target string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hops := t.routes[target]
	if len(hops) == 0 {
		return "", false
	}
	return hops[0].Peer, true
}

// Hops returns every known next-hop for target, sorted by RTT.
func (t *Table) Hops(target string) []NextHop {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NextHop, len(t.routes[target]))
	copy(out, t.routes[target])
	return out
}

// Reachable reports whether any route to target is known.
func (t *Table) Reachable(target string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes[target]) > 0
}

// HopCount approximates path length in hops for target via its
// primary route; routing.Table does not itself track multi-hop chains
// (each peer only knows its own next-hop), so this returns 1 when
// reachable directly via hop==target, else 2 when relayed, whatever
// the real number of hops behind the next hop is.
func (t *Table) HopCount(target string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hops := t.routes[target]
	if len(hops) == 0 {
		return 0, false
	}
	if hops[0].Peer == target {
		return 1, true
	}
	return 2, true
}

// EvictNeighbor removes every route learned via hop, e.g. on peer-down
// or an explicit Goodbye (§3 "stale neighbors are evicted on
// disconnect").
func (t *Table) EvictNeighbor(hop string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for target, hops := range t.routes {
		out := hops[:0:0]
		for _, h := range hops {
			if h.Peer != hop {
				out = append(out, h)
			}
		}
		if len(out) == 0 {
			delete(t.routes, target)
		} else {
			t.routes[target] = out
		}
	}
}

// ExpireStale drops routes whose LearnedAt is older than ttl.
func (t *Table) ExpireStale(now time.Time, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for target, hops := range t.routes {
		out := hops[:0:0]
		for _, h := range hops {
			if now.Sub(h.LearnedAt) <= ttl {
				out = append(out, h)
			}
		}
		if len(out) == 0 {
			delete(t.routes, target)
		} else {
			t.routes[target] = out
		}
	}
}
