package dlog

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
)

// JoinResult reports what happened to a batch of incoming entries.
type JoinResult struct {
	Added    []*entry.Entry
	Deferred []*entry.Entry // missing a parent; kept pending
	Rejected []*entry.Entry // failed verification or access check
}

// Join merges a batch of entries from another replica, verifying
// signatures and append-permission, integrating causally-ready
// entries atomically, and refreshing heads and the clock (§4.2). Join
// is commutative and idempotent: re-joining the same entries, or
// joining the union in a different order, converges to the same
// state (G-Set CRDT semantics, §1 non-goals).
func (l *Log) Join(ctx context.Context, incoming []*entry.Entry) (JoinResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return JoinResult{}, logerr.ErrClosed
	}

	var res JoinResult
	// Sort causally so parents integrate before children within this
	// batch even if the caller supplied them out of order.
	batch := append([]*entry.Entry(nil), incoming...)
	sortBatchCausally(batch)

	for _, e := range batch {
		if _, exists := l.entries[keyOf(e.Hash)]; exists {
			continue // idempotent: already integrated
		}
		if err := l.verifyIncomingLocked(e); err != nil {
			l.log.WithError(err).WithField("hash", e.Hash.String()).Debug("rejected incoming entry")
			res.Rejected = append(res.Rejected, e)
			continue
		}
		missing := l.missingParentsLocked(ctx, e)
		if len(missing) > 0 {
			l.pending[keyOf(e.Hash)] = &pendingEntry{
				e:        e,
				missing:  missing,
				deadline: time.Now().Add(l.opt.PendingTimeout),
			}
			res.Deferred = append(res.Deferred, e)
			continue
		}
		l.integrateLocked(e)
		if e.Clock.Time > l.clock {
			l.clock = e.Clock.Time
		}
		res.Added = append(res.Added, e)
		l.resolvePendingLocked(e.Hash)
	}
	return res, nil
}

func sortBatchCausally(batch []*entry.Entry) {
	// Simple causal presort: ascending clock time. A child's clock is
	// always strictly greater than any parent's (§3 invariant), so
	// this guarantees parents precede children within the batch.
	for i := 1; i < len(batch); i++ {
		for j := i; j > 0 && entry.Compare(batch[j-1], batch[j]) > 0; j-- {
			batch[j-1], batch[j] = batch[j], batch[j-1]
		}
	}
}

// verifyIncomingLocked checks signature validity, append permission,
// and gid correctness for an entry about to be integrated.
func (l *Log) verifyIncomingLocked(e *entry.Entry) error {
	if l.opt.IdentityProvider != nil {
		if err := entry.Verify(e, l.opt.IdentityProvider); err != nil {
			return err
		}
	}
	if l.opt.CanAppend != nil && !l.opt.CanAppend(e.Identity) {
		return logerr.ErrAccessDenied
	}
	wantGid := maxParentGid(l.entries, e.Next)
	if wantGid != "" && e.Gid != wantGid {
		return logerr.ErrUndecodable
	}
	return nil
}

// missingParentsLocked returns the set of e's next-references that
// cannot be resolved locally or (best-effort, synchronously) from the
// block store.
func (l *Log) missingParentsLocked(ctx context.Context, e *entry.Entry) map[string]struct{} {
	missing := make(map[string]struct{})
	for _, n := range e.Next {
		k := keyOf(n)
		if _, ok := l.entries[k]; ok {
			continue
		}
		if l.opt.BlockStore != nil {
			if raw, ok, err := l.opt.BlockStore.Get(ctx, k); err == nil && ok {
				if parent, err := entry.Decode(raw); err == nil {
					l.entries[k] = parent
					continue
				}
			}
		}
		missing[k] = struct{}{}
	}
	return missing
}

// resolvePendingLocked re-checks every pending entry waiting on h and
// integrates any that have become causally ready.
func (l *Log) resolvePendingLocked(h cid.Cid) {
	k := keyOf(h)
	var ready []*pendingEntry
	for pk, p := range l.pending {
		if _, ok := p.missing[k]; ok {
			delete(p.missing, k)
			if len(p.missing) == 0 {
				ready = append(ready, p)
				delete(l.pending, pk)
			}
		}
	}
	for _, p := range ready {
		l.integrateLocked(p.e)
		if p.e.Clock.Time > l.clock {
			l.clock = p.e.Clock.Time
		}
		l.resolvePendingLocked(p.e.Hash)
	}
}

// ExpirePending drops pending entries whose deadline has elapsed,
// matching §4.2's "deferred...until parent arrives or a timeout".
func (l *Log) ExpirePending(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, p := range l.pending {
		if now.After(p.deadline) {
			delete(l.pending, k)
			n++
		}
	}
	return n
}
