// Package role implements the per-peer role state machine (§4.5):
// Observer vs Replicator (fixed or adaptive), and the pub-sub used to
// notify the shared log of role changes so it can broadcast, update
// the ring, and run a distribution pass.
package role

import (
	"sync"
	"time"
)

// Kind enumerates the three role variants (§4.5, §6 "role" config).
type Kind uint8

const (
	Observer Kind = iota
	Replicator
	AdaptiveReplicator
)

func (k Kind) String() string {
	switch k {
	case Observer:
		return "observer"
	case Replicator:
		return "replicator"
	case AdaptiveReplicator:
		return "adaptive_replicator"
	default:
		return "unknown"
	}
}

// Limits bounds an AdaptiveReplicator's target memory usage, fed to
// the PID controller.
type Limits struct {
	MemoryLimit uint64
}

// Role is a value of the state machine: Observer carries Factor==0 by
// convention; Replicator/AdaptiveReplicator carry the currently
// claimed ring factor.
type Role struct {
	Kind      Kind
	Factor    float64
	Limits    Limits
	Timestamp time.Time
}

// Machine holds the current role and fans out every transition to
// subscribers — modeled as an explicit pub-sub with a typed event
// channel per listener (§9 design notes), avoiding a global observer
// pattern.
type Machine struct {
	mu        sync.Mutex
	current   Role
	listeners []chan Role
}

// New constructs a Machine starting in the given role (§4.5 "open ->
// initial role from config").
func New(initial Role) *Machine {
	if initial.Timestamp.IsZero() {
		initial.Timestamp = time.Now()
	}
	return &Machine{current: initial}
}

// Current returns the active role.
func (m *Machine) Current() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers a new listener channel for role-change events.
// The channel is buffered; a slow subscriber drops the oldest pending
// event rather than blocking the event loop, matching the
// single-threaded run-to-completion model in §5.
func (m *Machine) Subscribe() <-chan Role {
	ch := make(chan Role, 4)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()
	return ch
}

func (m *Machine) publish(r Role) {
	for _, ch := range m.listeners {
		select {
		case ch <- r:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- r:
			default:
			}
		}
	}
}

// ToObserver switches explicitly to Observer with factor 0 (§4.5).
func (m *Machine) ToObserver(now time.Time) Role {
	m.mu.Lock()
	m.current = Role{Kind: Observer, Factor: 0, Timestamp: now}
	r := m.current
	m.mu.Unlock()
	m.publish(r)
	return r
}

// ToReplicator sets a fixed replication factor.
func (m *Machine) ToReplicator(factor float64, now time.Time) Role {
	m.mu.Lock()
	m.current = Role{Kind: Replicator, Factor: clamp01(factor), Timestamp: now}
	r := m.current
	m.mu.Unlock()
	m.publish(r)
	return r
}

// ToAdaptive sets adaptive-replicator mode with starting factor and
// memory limits.
func (m *Machine) ToAdaptive(factor float64, limits Limits, now time.Time) Role {
	m.mu.Lock()
	m.current = Role{Kind: AdaptiveReplicator, Factor: clamp01(factor), Limits: limits, Timestamp: now}
	r := m.current
	m.mu.Unlock()
	m.publish(r)
	return r
}

// UpdateAdaptiveFactor applies a new factor computed by the PID
// controller (§4.5 "AdaptiveReplicator.factor changes via PID"). It is
// a no-op (returns ok=false) if the machine is not currently in
// AdaptiveReplicator state.
func (m *Machine) UpdateAdaptiveFactor(factor float64, now time.Time) (Role, bool) {
	m.mu.Lock()
	if m.current.Kind != AdaptiveReplicator {
		r := m.current
		m.mu.Unlock()
		return r, false
	}
	m.current.Factor = clamp01(factor)
	m.current.Timestamp = now
	r := m.current
	m.mu.Unlock()
	m.publish(r)
	return r, true
}

// Close transitions to the terminal state: Observer with factor 0,
// broadcast as Goodbye by the caller, followed by ring cleanup (§4.5
// "terminal: close -> Observer (factor 0)").
func (m *Machine) Close(now time.Time) Role {
	return m.ToObserver(now)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
