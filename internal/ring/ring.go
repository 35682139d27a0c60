// Package ring implements the replication ring (§4.3, §3 Replication
// Range): an ordered set of (peer, offset, factor, timestamp) ranges
// on the unit circle, answering cover-set and sample queries used for
// leader selection and pruning.
package ring

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
	"time"
)

// Range is one peer's claimed replication arc [Offset, Offset+Factor)
// mod 1 (§3).
type Range struct {
	PeerID    string
	Offset    float64 // deterministic hash-to-uniform of PeerID, [0,1)
	Factor    float64 // claimed segment width, [0,1]
	Timestamp time.Time
}

// HashToUnit deterministically maps an arbitrary key (a peer id or a
// gid) to a point on [0,1), used both for a peer's ring Offset and
// for sample()'s cursor derivation from a gid.
func HashToUnit(key string) float64 {
	h := sha256.Sum256([]byte(key))
	v := binary.BigEndian.Uint64(h[:8])
	return float64(v>>11) / float64(uint64(1)<<53)
}

// Ring is the ordered collection of Ranges indexed by offset
// (GLOSSARY: Ring). It is owned exclusively by its caller's event
// loop per §5; this type provides no internal locking of its own
// beyond what's needed to hand back a consistent snapshot, matching
// the teacher's single-owner mutable state pattern.
type Ring struct {
	mu     sync.RWMutex
	ranges map[string]*Range // by PeerID, for O(1) update
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{ranges: make(map[string]*Range)}
}

// Upsert inserts or updates a peer's range (§4.3 insert/update).
func (r *Ring) Upsert(rg Range) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := rg
	r.ranges[rg.PeerID] = &cp
}

// Remove deletes a peer's range, e.g. on unsubscribe/disconnect.
func (r *Ring) Remove(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ranges, peerID)
}

// Get returns a peer's current range, if known.
func (r *Ring) Get(peerID string) (Range, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.ranges[peerID]
	if !ok {
		return Range{}, false
	}
	return *rg, true
}

// Len reports how many peers are on the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ranges)
}

// TotalParticipation sums every peer's claimed factor, the PID
// controller's "total_participation" input.
func (r *Ring) TotalParticipation() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, rg := range r.ranges {
		total += rg.Factor
	}
	return total
}

// sorted returns all ranges ordered by Offset, ascending.
func (r *Ring) sorted() []Range {
	out := make([]Range, 0, len(r.ranges))
	for _, rg := range r.ranges {
		out = append(out, *rg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Snapshot returns every range ordered by offset, for callers that
// need a consistent read without holding the ring's lock (§5).
func (r *Ring) Snapshot() []Range {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sorted()
}

// IsMature reports whether rg's timestamp is old enough relative to
// now (§4.3 is_mature).
func IsMature(rg Range, now time.Time, minAge time.Duration) bool {
	return now.Sub(rg.Timestamp) >= minAge
}
