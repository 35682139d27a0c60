// Package pidctl implements the PID replication controller (§4.6):
// it turns local memory pressure, peer count and total ring
// participation into a new local replication factor.
package pidctl

// ErrorFunc computes the control error for a tick. The default
// (DefaultErrorFunc) is usedMemory/targetMemoryLimit - 1; callers may
// substitute their own (§6 "error?" config option).
type ErrorFunc func(in Inputs, cfg Config) float64

// Inputs is what the shared log samples once per tick (§4.6).
type Inputs struct {
	UsedMemory         uint64
	CurrentFactor      float64
	TotalParticipation float64
	PeerCount          int
	MinReplicas        int
}

// Config holds the controller's tunables. The gains and the 10-sample
// history window are not derived from first principles in the source
// material (§9 open question): treat them as tunables, defaulted to
// values that produce a stable, damped response in the end-to-end
// scenarios.
type Config struct {
	TargetMemoryLimit uint64
	Kp, Ki, Kd        float64
	ErrorFn           ErrorFunc
	HistoryLen        int
}

// DefaultConfig returns the tunables used absent explicit
// configuration.
func DefaultConfig(targetMemoryLimit uint64) Config {
	return Config{
		TargetMemoryLimit: targetMemoryLimit,
		Kp:                0.6,
		Ki:                0.1,
		Kd:                0.05,
		ErrorFn:           DefaultErrorFunc,
		HistoryLen:        10,
	}
}

// DefaultErrorFunc is the §4.6 default error function.
func DefaultErrorFunc(in Inputs, cfg Config) float64 {
	if cfg.TargetMemoryLimit == 0 {
		return 0
	}
	return float64(in.UsedMemory)/float64(cfg.TargetMemoryLimit) - 1
}

// Controller is a stateful PID loop: each Tick call samples Inputs and
// returns the next factor, bounded to [0,1].
type Controller struct {
	cfg     Config
	history []float64 // bounded to cfg.HistoryLen, oldest first
	lastErr float64
	haveErr bool
}

// New returns a Controller using cfg. A nil ErrorFn falls back to
// DefaultErrorFunc and a non-positive HistoryLen to 10; the gains and
// TargetMemoryLimit are used exactly as given.
func New(cfg Config) *Controller {
	if cfg.ErrorFn == nil {
		cfg.ErrorFn = DefaultErrorFunc
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = 10
	}
	return &Controller{cfg: cfg}
}

// Tick computes the new replication factor from one sample (§4.6) as
// clamp(CurrentFactor - Kp*e - Ki*sum(e) - Kd*delta(e), 0, 1), where e
// comes from the configured ErrorFn and sum(e) runs over the bounded
// history. Tick does not use TargetFactor.
func (c *Controller) Tick(in Inputs) float64 {
	e := c.cfg.ErrorFn(in, c.cfg)

	c.history = append(c.history, e)
	if len(c.history) > c.cfg.HistoryLen {
		c.history = c.history[len(c.history)-c.cfg.HistoryLen:]
	}

	var integral float64
	for _, v := range c.history {
		integral += v
	}

	var derivative float64
	if c.haveErr {
		derivative = e - c.lastErr
	}
	c.lastErr = e
	c.haveErr = true

	next := in.CurrentFactor - c.cfg.Kp*e - c.cfg.Ki*integral - c.cfg.Kd*derivative
	return clamp(next, 0, 1)
}

// TargetFactor returns the equal-share target factor
// 1/max(1, min_replicas*peer_count). Controller.Tick does not take it
// into account.
func TargetFactor(minReplicas, peerCount int) float64 {
	denom := minReplicas * peerCount
	if denom < 1 {
		denom = 1
	}
	return 1.0 / float64(denom)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
