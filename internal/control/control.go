// Package control implements the node-side half of the newline-framed
// JSON/TCP control socket that cmd/sharedlogctl's client dials,
// grounded on cmd/cli/replication.go's replClient protocol (the
// teacher only ships the client; this is the matching server side,
// accepting one connection per command the same way
// core/network.go's Subscribe loops spawn one goroutine per stream).
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orbas1/sharedlog/internal/dlog"
	"github.com/orbas1/sharedlog/internal/ring"
	"github.com/orbas1/sharedlog/internal/role"
	"github.com/orbas1/sharedlog/internal/routing"
	"github.com/orbas1/sharedlog/internal/sharedlog"
	"github.com/orbas1/sharedlog/internal/transport"
)

// Request is the newline-delimited JSON request frame a client sends.
type Request struct {
	Action      string `json:"action"`
	Payload     string `json:"payload,omitempty"`
	MinReplicas int    `json:"min_replicas,omitempty"`
}

// Response is the newline-delimited JSON reply frame.
type Response struct {
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Server accepts control connections and dispatches actions against a
// running SharedLog/Transport/Ring instance.
type Server struct {
	sl *sharedlog.SharedLog
	t  *transport.Transport
	ro *ring.Ring
	rm *role.Machine
	l  *dlog.Log

	lg *logrus.Entry

	mu sync.Mutex
	ln net.Listener
}

// New builds a control server bound to a node's live collaborators.
func New(sl *sharedlog.SharedLog, t *transport.Transport, ro *ring.Ring, rm *role.Machine, l *dlog.Log, lg *logrus.Logger) *Server {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Server{sl: sl, t: t, ro: ro, rm: rm, l: l, lg: lg.WithField("component", "control")}
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.lg.WithError(err).Warn("control accept failed")
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)

	var req Request
	dec := json.NewDecoder(rd)
	if err := dec.Decode(&req); err != nil {
		s.lg.WithError(err).Debug("malformed control request")
		return
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp := s.dispatch(rctx, req)
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = conn.Write(b)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Action {
	case "status":
		return s.handleStatus()
	case "append":
		return s.handleAppend(ctx, req)
	case "peers":
		return s.handlePeers()
	case "ring":
		return s.handleRing()
	case "role":
		return s.handleRole()
	case "stop":
		s.sl.Close(ctx)
		return Response{Data: map[string]any{"stopped": true}}
	default:
		return Response{Error: "control: unknown action " + req.Action}
	}
}
