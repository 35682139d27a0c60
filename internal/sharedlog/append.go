package sharedlog

import (
	"context"
	"fmt"

	"github.com/orbas1/sharedlog/internal/dlog"
	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
	"github.com/orbas1/sharedlog/internal/transport"
)

// Append extends the local Log and replicates the resulting entry to
// its leader set (§4.5 "Append path"): if this peer is itself a
// leader, new heads are pushed to the other leaders via Silent
// delivery (redundancy 1); otherwise delivery is Acknowledged and
// Append blocks until at least one leader confirms storage.
func (sl *SharedLog) Append(ctx context.Context, payload []byte, opts dlog.AppendOptions) (*entry.Entry, error) {
	if opts.MinReplicas == 0 {
		opts.MinReplicas = uint32(sl.cfg.MinReplicas)
	}
	e, err := sl.log.Append(ctx, payload, opts)
	if err != nil {
		return nil, err
	}

	leaders := sl.computeLeaders(e.Gid, int(e.MinReplicas))
	self := sl.t.Self()
	var others []string
	amLeader := false
	for _, p := range leaders {
		if p == self {
			amLeader = true
			continue
		}
		others = append(others, p)
	}
	if len(others) == 0 {
		return e, nil
	}

	body := encodeExchangeHeads([]*entry.Entry{e})
	if amLeader {
		if _, err := sl.t.Publish(ctx, others, body, transport.PayloadExchangeHeads, transport.ModeSilent, 1); err != nil {
			sl.lg.WithError(err).Debug("silent replication fanout to co-leaders incomplete")
		}
		return e, nil
	}

	if err := sl.confirmAtLeastOne(ctx, others, body); err != nil {
		return e, fmt.Errorf("sharedlog: append: %w", err)
	}
	return e, nil
}

// confirmAtLeastOne sends an Acknowledged ExchangeHeads independently
// to each target and succeeds as soon as any single one acks (§4.5
// "we must confirm at least one leader stored it") — Transport's own
// Acknowledged mode waits for every listed target, so fan-out here is
// done as one Publish call per target raced against each other.
func (sl *SharedLog) confirmAtLeastOne(ctx context.Context, targets []string, body []byte) error {
	race, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		err error
	}
	results := make(chan outcome, len(targets))
	for _, target := range targets {
		target := target
		go func() {
			_, err := sl.t.Publish(race, []string{target}, body, transport.PayloadExchangeHeads, transport.ModeAcknowledged, 0)
			results <- outcome{err: err}
		}()
	}

	var lastErr error
	for i := 0; i < len(targets); i++ {
		o := <-results
		if o.err == nil {
			cancel()
			return nil
		}
		lastErr = o.err
	}
	if lastErr == nil {
		lastErr = logerr.ErrNoRoute
	}
	return lastErr
}
