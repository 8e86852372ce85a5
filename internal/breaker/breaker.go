// Package breaker provides a minimal, thread-safe circuit breaker used to
// shield the request path from a distributed cache backend that is down.
//
// States:
//   - Closed: operations flow normally; consecutive failures are counted.
//   - Open: operations are skipped; after CoolDown a single probe is allowed.
//   - HalfOpen: one probe in flight; success closes the breaker, failure
//     reopens it.
package breaker

import (
	"sync"
	"time"
)

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// CoolDown is how long the breaker stays Open before allowing a probe.
	CoolDown time.Duration
}

// Breaker is a minimal circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state    State
	failures int
	openedAt time.Time
	nowFunc  func() time.Time // for testing; defaults to time.Now
}

// New creates a Breaker with the given configuration. Zero-value fields get
// conservative defaults (5 failures, 10s cool-down).
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 10 * time.Second
	}
	return &Breaker{cfg: cfg, state: Closed, nowFunc: time.Now}
}

// SetClock overrides the time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.nowFunc = now
	b.mu.Unlock()
}

// Allow reports whether an operation may proceed. When the breaker is Open
// and the cool-down has elapsed it transitions to HalfOpen and admits a
// single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return false
	default: // Open
		if b.nowFunc().Sub(b.openedAt) >= b.cfg.CoolDown {
			b.state = HalfOpen
			return true
		}
		return false
	}
}

// OnSuccess records a successful operation.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
}

// OnFailure records a failed operation.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

// State returns the current state. Test hook.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.failures = 0
}
