package dlog

import (
	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
)

// Cut retains the newest size entries in sort order and rebuilds
// heads (§4.2). It is the trimming half of the append-time recycle
// policy and is also callable directly for manual compaction.
func (l *Log) Cut(size int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return logerr.ErrClosed
	}
	l.cutLocked(size)
	return nil
}

func (l *Log) cutLocked(size int) {
	if size <= 0 || len(l.entries) <= size {
		return
	}
	all := sortedEntries(l.entries)
	// sortedEntries is ascending by clock; keep the tail (newest).
	keep := all[len(all)-size:]

	newEntries := make(map[string]*entry.Entry, len(keep))
	referenced := make(map[string]struct{})
	for _, e := range keep {
		newEntries[keyOf(e.Hash)] = e
		for _, n := range e.Next {
			referenced[keyOf(n)] = struct{}{}
		}
	}
	newHeads := make(map[string]*entry.Entry)
	for k, e := range newEntries {
		if _, isReferenced := referenced[k]; !isReferenced {
			newHeads[k] = e
		}
	}
	l.entries = newEntries
	l.heads = newHeads
}

// Remove deletes an entry the caller has pruned (e.g. via the shared
// log's negotiated prune, §4.5). If removing it unreferences any of
// its "next" parents still present, they are promoted to heads.
func (l *Log) Remove(h cid.Cid) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := keyOf(h)
	e, ok := l.entries[k]
	if !ok {
		return false
	}
	delete(l.entries, k)
	delete(l.heads, k)
	for _, n := range e.Next {
		nk := keyOf(n)
		if parent, ok := l.entries[nk]; ok && !l.referencedLocked(n) {
			l.heads[nk] = parent
		}
	}
	return true
}

// referencedLocked reports whether any remaining entry's Next set
// still contains h.
func (l *Log) referencedLocked(h cid.Cid) bool {
	k := keyOf(h)
	for _, e := range l.entries {
		for _, n := range e.Next {
			if keyOf(n) == k {
				return true
			}
		}
	}
	return false
}

// Close marks the log closed: pending suspensions resolve rather than
// reject (§5 cancellation semantics), and further operations return
// ErrClosed.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.pending = make(map[string]*pendingEntry)
}
