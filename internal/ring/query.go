package ring

import (
	"math"
	"sort"
	"time"
)

// circularDist returns the shorter distance between two points on the
// unit circle.
func circularDist(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 0.5 {
		d = 1 - d
	}
	return d
}

// arcContains reports whether point lies in [offset, offset+factor)
// mod 1.
func arcContains(offset, factor, point float64) bool {
	if factor <= 0 {
		return false
	}
	end := offset + factor
	if end <= 1.0 {
		return point >= offset && point < end
	}
	return point >= offset || point < end-1.0
}

// CoverSet answers "which peers together hold a complete replica
// set": starting at start_peer, it walks the ring forward consuming
// peer widths until the accumulated factor reaches width, preferring
// mature ranges. If the ring has no mature range at all, immature
// peers are walked in nearest-first order instead (§4.3, §9 open
// question — see DESIGN.md for the resolved corner case). The
// starting peer is always included in the result.
func (r *Ring) CoverSet(width float64, startPeer string, now time.Time, minAge time.Duration) []string {
	snap := r.sorted()
	n := len(snap)
	if n == 0 {
		return nil
	}
	startIdx := -1
	for i, rg := range snap {
		if rg.PeerID == startPeer {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil
	}

	matureExists := false
	for _, rg := range snap {
		if IsMature(rg, now, minAge) {
			matureExists = true
			break
		}
	}

	seen := make(map[string]bool, n)
	var result []string
	total := 0.0

	if matureExists {
		for i := 0; i < n; i++ {
			rg := snap[(startIdx+i)%n]
			if rg.PeerID != startPeer && !IsMature(rg, now, minAge) {
				continue
			}
			if seen[rg.PeerID] {
				continue
			}
			seen[rg.PeerID] = true
			result = append(result, rg.PeerID)
			total += rg.Factor
			if total >= width {
				break
			}
		}
		return result
	}

	// No mature range anywhere: fall back to nearest-first by
	// circular distance from the start peer's offset.
	type candidate struct {
		rg   Range
		dist float64
	}
	startOffset := snap[startIdx].Offset
	cands := make([]candidate, 0, n)
	for _, rg := range snap {
		cands = append(cands, candidate{rg, circularDist(startOffset, rg.Offset)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].rg.PeerID == startPeer {
			return true
		}
		if cands[j].rg.PeerID == startPeer {
			return false
		}
		return cands[i].dist < cands[j].dist
	})
	for _, c := range cands {
		if seen[c.rg.PeerID] {
			continue
		}
		seen[c.rg.PeerID] = true
		result = append(result, c.rg.PeerID)
		total += c.rg.Factor
		if total >= width {
			break
		}
	}
	return result
}

// Sample deterministically picks `count` leaders for a specific gid
// (§4.3 sample, used by leader selection in §4.5): for i in
// 0..count, it probes the point (cursor + i/count) mod 1 and
// collects the peer whose arc covers that point, breaking ties by
// distance to the arc's midpoint.
func (r *Ring) Sample(cursor float64, count int) []string {
	if count <= 0 {
		return nil
	}
	snap := r.sorted()
	if len(snap) == 0 {
		return nil
	}
	seen := make(map[string]bool, count)
	var result []string
	for i := 0; i < count; i++ {
		point := math.Mod(cursor+float64(i)/float64(count), 1.0)
		if peer := coveringPeer(snap, point); peer != "" && !seen[peer] {
			seen[peer] = true
			result = append(result, peer)
		}
	}
	return result
}

// coveringPeer finds the range covering point, preferring (on overlap)
// whichever range's midpoint is closer to point; if no range covers
// point (a ring gap), the nearest range by offset distance is used.
func coveringPeer(snap []Range, point float64) string {
	var best *Range
	bestDist := math.MaxFloat64
	any := false
	for i := range snap {
		rg := &snap[i]
		if arcContains(rg.Offset, rg.Factor, point) {
			any = true
			mid := math.Mod(rg.Offset+rg.Factor/2, 1.0)
			d := circularDist(mid, point)
			if d < bestDist {
				bestDist = d
				best = rg
			}
		}
	}
	if any {
		return best.PeerID
	}
	// Gap fallback: nearest range by offset.
	for i := range snap {
		rg := &snap[i]
		d := circularDist(rg.Offset, point)
		if d < bestDist {
			bestDist = d
			best = rg
		}
	}
	if best == nil {
		return ""
	}
	return best.PeerID
}
