package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/orbas1/sharedlog/internal/logerr"
)

// PublishResult reports what Acknowledged/Seek delivery learned.
type PublishResult struct {
	Acked     []string
	Reachable []string // peers known reachable at the time of failure
}

// Publish sends payload to the given targets (or broadcasts if to is
// empty) using mode, per §4.4's three delivery modes.
func (t *Transport) Publish(ctx context.Context, to []string, payload []byte, pk PayloadKind, mode Mode, redundancy int) (*PublishResult, error) {
	id := NewMsgID()
	now := time.Now()
	msg := DataMessage{
		Header: Header{
			ID:        id,
			Timestamp: nowMillis(),
			Expires:   nowMillis() + uint64(t.cfg.RouteTTL.Milliseconds()),
			Origin:    t.self,
			To:        to,
		},
		Mode:        mode,
		Redundancy:  uint8(redundancy),
		PayloadKind: pk,
		TTL:         8,
	}
	t.signHeader(&msg.Header, dataMessageBody(msg))
	// Mark our own message seen so a looped-back copy (a relay that
	// forwards to a neighbor who forwards back to us) is not
	// reprocessed.
	t.seen.CheckAndMark(DedupKey(id))

	switch mode {
	case ModeSilent:
		t.relay(ctx, "", msg)
		return &PublishResult{}, nil

	case ModeAcknowledged:
		p := t.registerPending(to)
		t.relay(ctx, "", msg)
		return t.waitAck(ctx, id, p, now)

	case ModeSeek:
		p := t.registerPending(to)
		t.floodToNeighbors(ctx, "", msg, 0)
		return t.waitAck(ctx, id, p, now)

	default:
		return nil, fmt.Errorf("transport: unknown delivery mode %d", mode)
	}
}

func (t *Transport) registerPending(to []string) *pendingAck {
	p := &pendingAck{
		targets: make(map[string]bool, len(to)),
		done:    make(chan struct{}),
	}
	for _, tg := range to {
		p.targets[tg] = false
	}
	p.waiting = len(to)
	return p
}

func (t *Transport) waitAck(ctx context.Context, id MsgID, p *pendingAck, sentAt time.Time) (*PublishResult, error) {
	t.mu.Lock()
	t.pending[id] = p
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	select {
	case <-p.done:
		return &PublishResult{Acked: ackedList(p)}, nil
	case <-ctx.Done():
		res := &PublishResult{Acked: ackedList(p), Reachable: t.Neighbors()}
		if len(res.Acked) == 0 {
			return res, logerr.ErrNoRoute
		}
		return res, logerr.ErrTimeout
	}
}

func ackedList(p *pendingAck) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.targets))
	for peerID, acked := range p.targets {
		if acked {
			out = append(out, peerID)
		}
	}
	return out
}

// isTarget reports whether this peer should consume the message
// locally: an empty To list means "everyone", otherwise self must be
// listed.
func (t *Transport) isTarget(to []string) bool {
	if len(to) == 0 {
		return true
	}
	for _, tg := range to {
		if tg == t.self {
			return true
		}
	}
	return false
}

// handleData processes one de-duplicated (or re-seen) DataMessage:
// relay per its To-list, then deliver locally if addressed to self.
func (t *Transport) handleData(ctx context.Context, viaNeighbor string, m DataMessage) {
	key := DedupKey(m.Header.ID)
	alreadySeen := t.seen.CheckAndMark(key)

	if alreadySeen {
		// Fan-in dedup (§4.4): do not reprocess, but still ACK with a
		// bumped seen_counter so the origin learns about redundant
		// delivery paths.
		if m.Mode != ModeSilent && t.isTarget(m.Header.To) {
			t.sendAck(ctx, viaNeighbor, m, 1)
		}
		return
	}

	if m.Header.Origin != t.self {
		t.relay(ctx, viaNeighbor, m)
	}

	if t.isTarget(m.Header.To) {
		if m.Mode != ModeSilent {
			t.sendAck(ctx, viaNeighbor, m, 0)
		}
		t.mu.Lock()
		h := t.dataHandler
		t.mu.Unlock()
		if h != nil {
			h(ctx, viaNeighbor, m)
		}
	}
}

// relay splits a message's To-list across the next-hop neighbor
// owning the shortest known path to each target; unknown targets are
// broadcast to all neighbors except the incoming link, bounded by
// redundancy (§4.4 "Routing").
func (t *Transport) relay(ctx context.Context, viaNeighbor string, m DataMessage) {
	if len(m.Header.To) == 0 {
		t.floodToNeighbors(ctx, viaNeighbor, m, int(m.Redundancy))
		return
	}

	byHop := make(map[string][]string)
	var unknown []string
	for _, target := range m.Header.To {
		if target == t.self {
			continue
		}
		if hop, ok := t.routes.Primary(target); ok && hop != viaNeighbor {
			byHop[hop] = append(byHop[hop], target)
		} else if !ok {
			unknown = append(unknown, target)
		}
	}
	for hop, targets := range byHop {
		relayed := m
		relayed.Header.To = targets
		t.sendFrameBestEffort(ctx, hop, EncodeDataMessage(relayed))
	}
	if len(unknown) > 0 {
		relayed := m
		relayed.Header.To = unknown
		t.floodToNeighbors(ctx, viaNeighbor, relayed, int(m.Redundancy))
	}
}

// floodToNeighbors broadcasts m to every directly connected neighbor
// except exclude, optionally bounded to the first `redundancy`
// neighbors (0 means unbounded — used by Seek's initial fanout).
func (t *Transport) floodToNeighbors(ctx context.Context, exclude string, m DataMessage, redundancy int) {
	if m.Mode == ModeSeek {
		if m.TTL == 0 {
			return
		}
		m.TTL--
	}
	neighbors := t.Neighbors()
	sent := 0
	for _, n := range neighbors {
		if n == exclude {
			continue
		}
		if redundancy > 0 && sent >= redundancy {
			break
		}
		t.sendFrameBestEffort(ctx, n, EncodeDataMessage(m))
		sent++
	}
}

// sendFrameBestEffort sends a frame, logging (not surfacing) failures
// per §7's "drop silently" posture for transport-layer hiccups on
// relay paths; callers awaiting delivery confirmation rely on
// Acknowledged/Seek's ACK timeout instead.
func (t *Transport) sendFrameBestEffort(ctx context.Context, peerID string, frame []byte) {
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.sendFrame(sctx, peerID, frame); err != nil {
		t.log.WithError(err).WithField("peer", peerID).Trace("best-effort send failed")
	}
}

// sendAck responds to a received DataMessage's header id, with
// SeenCounter bumped when this is a redundant delivery.
func (t *Transport) sendAck(ctx context.Context, to string, m DataMessage, seenBump uint32) {
	ack := Ack{
		Header: Header{
			ID:        NewMsgID(),
			Timestamp: nowMillis(),
			Origin:    t.self,
		},
		InReplyTo:   m.Header.ID,
		SeenCounter: seenBump,
		SendTime:    m.Header.Timestamp,
	}
	t.signHeader(&ack.Header, ackBody(ack))
	t.sendFrameBestEffort(ctx, to, EncodeAck(ack))
}

// handleAck learns a route to the acking peer and resolves any
// pending Acknowledged/Seek wait for its InReplyTo id (§4.4 "Route
// learning").
func (t *Transport) handleAck(viaNeighbor string, a Ack) {
	now := time.Now()
	sendTime := time.UnixMilli(int64(a.SendTime))
	rtt := now.Sub(sendTime)
	if rtt < 0 {
		rtt = 0
	}
	if a.Header.Origin != "" {
		t.routes.Learn(a.Header.Origin, viaNeighbor, rtt, now)
	}

	t.mu.Lock()
	p, ok := t.pending[a.InReplyTo]
	t.mu.Unlock()
	if !ok {
		return
	}

	p.mu.Lock()
	if _, tracked := p.targets[a.Header.Origin]; tracked {
		if !p.targets[a.Header.Origin] {
			p.targets[a.Header.Origin] = true
			p.waiting--
		}
	} else if len(p.targets) == 0 {
		// Seek/broadcast with no fixed target set: first ack from
		// anyone satisfies the wait and reveals a previously unknown
		// route.
		p.targets[a.Header.Origin] = true
		p.waiting = 0
	}
	done := p.waiting <= 0
	closed := p.closed
	if done && !closed {
		p.closed = true
	}
	p.mu.Unlock()

	if done && !closed {
		close(p.done)
	}
}
