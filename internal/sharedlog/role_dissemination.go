package sharedlog

import (
	"context"
	"time"

	"github.com/orbas1/sharedlog/internal/ring"
	"github.com/orbas1/sharedlog/internal/role"
	"github.com/orbas1/sharedlog/internal/transport"
)

// roleEventLoop subscribes to the local role.Machine and, on every
// transition, broadcasts it, updates this peer's own ring entry, and
// runs a distribution pass (§4.5 "any role change -> broadcast, ring
// update, distribution pass").
func (sl *SharedLog) roleEventLoop() {
	defer sl.wg.Done()
	changes := sl.rm.Subscribe()
	for {
		select {
		case <-sl.closeCh:
			return
		case r, ok := <-changes:
			if !ok {
				return
			}
			sl.onLocalRoleChange(r)
		}
	}
}

func (sl *SharedLog) onLocalRoleChange(r role.Role) {
	self := sl.t.Self()
	sl.ro.Upsert(ring.Range{
		PeerID:    self,
		Offset:    ring.HashToUnit(self),
		Factor:    r.Factor,
		Timestamp: r.Timestamp,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.Kind == role.Observer && r.Factor == 0 {
		body := encodeGoodbye()
		_, _ = sl.t.Publish(ctx, nil, body, transport.PayloadRole, transport.ModeSeek, 0)
	} else {
		body := encodeRoleMessage(roleMessage{Kind: r.Kind, Factor: r.Factor, Timestamp: uint64(r.Timestamp.UnixMilli())})
		_, _ = sl.t.Publish(ctx, nil, body, transport.PayloadRole, transport.ModeSeek, 1)
	}

	sl.runDistributionPass(ctx)
}

// encodeGoodbye reuses the Role message shape with factor 0 — the
// terminal role transition IS a Goodbye in ring/route terms, carried
// over the same PayloadRole channel so remote peers handle it via the
// ordinary role-update path (drop to factor 0, age out of cover sets).
func encodeGoodbye() []byte {
	return encodeRoleMessage(roleMessage{Kind: role.Observer, Factor: 0, Timestamp: uint64(time.Now().UnixMilli())})
}

// handleRoleMessage applies a remote peer's role broadcast to the
// ring, ignoring messages older than the latest one already accepted
// from that peer (§4.5 "a received role with a timestamp older than
// the latest seen is ignored").
func (sl *SharedLog) handleRoleMessage(from string, m roleMessage) {
	ts := time.UnixMilli(int64(m.Timestamp))

	sl.mu.Lock()
	last, seen := sl.lastRoleSeen[from]
	if seen && !ts.After(last) {
		sl.mu.Unlock()
		return
	}
	sl.lastRoleSeen[from] = ts
	sl.mu.Unlock()

	if m.Kind == role.Observer && m.Factor == 0 {
		sl.ro.Remove(from)
		sl.t.Routes().EvictNeighbor(from)
		return
	}

	sl.ro.Upsert(ring.Range{
		PeerID:    from,
		Offset:    ring.HashToUnit(from),
		Factor:    m.Factor,
		Timestamp: ts,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sl.runDistributionPass(ctx)
}
