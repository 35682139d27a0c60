package control

import (
	"context"
	"encoding/hex"

	"github.com/orbas1/sharedlog/internal/dlog"
)

// handleStatus answers the teacher's `status` shape: log id, length,
// head count, clock, role and factor, ring size and total
// participation, neighbor count and self id. It reports no replication
// progress or target.
func (s *Server) handleStatus() Response {
	heads := s.l.Heads()
	role := s.rm.Current()
	data := map[string]any{
		"log_id":        s.l.ID(),
		"len":           s.l.Len(),
		"heads":         len(heads),
		"clock":         s.l.Clock(),
		"role":          role.Kind.String(),
		"factor":        role.Factor,
		"ring_peers":    s.ro.Len(),
		"ring_total":    s.ro.TotalParticipation(),
		"neighbors":     len(s.t.Neighbors()),
		"self":          s.t.Self(),
	}
	return Response{Data: data}
}

// handleAppend decodes the hex-encoded payload the CLI's `append`
// subcommand sends and runs it through SharedLog.Append, mirroring the
// teacher's `replicate`/`request` RPCs taking a hex hash argument.
func (s *Server) handleAppend(ctx context.Context, req Request) Response {
	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		return Response{Error: "control: append: payload must be hex: " + err.Error()}
	}
	e, err := s.sl.Append(ctx, payload, dlog.AppendOptions{MinReplicas: uint32(req.MinReplicas)})
	if err != nil {
		return Response{Error: "control: append: " + err.Error()}
	}
	return Response{Data: map[string]any{
		"hash":  e.Hash.String(),
		"gid":   e.Gid,
		"clock": e.Clock.Time,
	}}
}

// handlePeers reports the directly connected neighbor set and, for
// each, whatever route the routing table has learned toward it as a
// target (best-effort; most neighbors are zero-hop).
func (s *Server) handlePeers() Response {
	neighbors := s.t.Neighbors()
	out := make([]map[string]any, 0, len(neighbors))
	for _, p := range neighbors {
		entry := map[string]any{"peer": p}
		if hop, ok := s.t.Routes().Primary(p); ok {
			entry["primary_hop"] = hop
		}
		out = append(out, entry)
	}
	return Response{Data: map[string]any{"peers": out}}
}

// handleRing reports the current ring snapshot: every known peer's
// offset/factor/timestamp (§3 Replication Range).
func (s *Server) handleRing() Response {
	snap := s.ro.Snapshot()
	out := make([]map[string]any, 0, len(snap))
	for _, r := range snap {
		out = append(out, map[string]any{
			"peer":      r.PeerID,
			"offset":    r.Offset,
			"factor":    r.Factor,
			"timestamp": r.Timestamp,
		})
	}
	return Response{Data: map[string]any{"ring": out}}
}

// handleRole reports this peer's current role.
func (s *Server) handleRole() Response {
	r := s.rm.Current()
	return Response{Data: map[string]any{
		"kind":         r.Kind.String(),
		"factor":       r.Factor,
		"memory_limit": r.Limits.MemoryLimit,
		"timestamp":    r.Timestamp,
	}}
}
