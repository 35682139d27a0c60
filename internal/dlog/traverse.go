package dlog

import (
	"sort"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
)

// Traverse walks the DAG breadth-first through "next" links starting
// from roots, in sort order, stopping after amount entries or upon
// reaching endHash (§4.2). It is deterministic given a fixed sort
// function (entry.Compare).
func (l *Log) Traverse(roots []cid.Cid, amount int, endHash *cid.Cid) []*entry.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.traverseLocked(roots, amount, endHash)
}

// traverseLocked is Traverse without locking; callers must hold at
// least l.mu.RLock.
func (l *Log) traverseLocked(roots []cid.Cid, amount int, endHash *cid.Cid) []*entry.Entry {
	visited := make(map[string]struct{})
	var frontier []*entry.Entry
	for _, r := range roots {
		if e, ok := l.entries[keyOf(r)]; ok {
			if _, seen := visited[keyOf(r)]; !seen {
				visited[keyOf(r)] = struct{}{}
				frontier = append(frontier, e)
			}
		}
	}

	var out []*entry.Entry
	for len(frontier) > 0 && (amount <= 0 || len(out) < amount) {
		// Newest-first: traversal starts at heads and descends toward
		// older ancestors, so the frontier's most recent entry is
		// always explored next.
		sort.Slice(frontier, func(i, j int) bool { return entry.Compare(frontier[i], frontier[j]) > 0 })
		cur := frontier[0]
		frontier = frontier[1:]
		out = append(out, cur)
		if endHash != nil && cur.Hash.Equals(*endHash) {
			break
		}
		for _, n := range cur.Next {
			k := keyOf(n)
			if _, seen := visited[k]; seen {
				continue
			}
			if ne, ok := l.entries[k]; ok {
				visited[k] = struct{}{}
				frontier = append(frontier, ne)
			}
		}
		if amount > 0 && len(out) >= amount {
			break
		}
	}
	return out
}
