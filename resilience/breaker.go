// Package resilience wraps remote calls with a circuit breaker and a
// bounded retry executor. The composition order is fixed: callers go
// through the breaker, the breaker runs the retry loop, the retry loop
// runs the operation. The breaker therefore reacts to sustained failure
// after retries are exhausted, not to single transient blips.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/csmkit/fault"
)

// State is the breaker's position in its lifecycle.
type State uint8

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes when the breaker trips and how long it stays open.
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // open duration before a trial call
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, FailureThreshold: 5, Cooldown: 60 * time.Second}
}

// Breaker fails fast once an operation keeps failing, then probes it
// again after a cooldown. Safe for concurrent use; all state changes
// happen under one mutex with no suspension between read and write.
type Breaker struct {
	cfg BreakerConfig
	log zerolog.Logger

	mu             sync.Mutex
	state          State
	consecFailures int
	lastFailure    time.Time
	trialInFlight  bool

	successes  uint64
	failures   uint64
	calls      uint64
	avgElapsed time.Duration

	now func() time.Time
}

// NewBreaker creates a closed breaker. Zero config fields fall back to
// the defaults.
func NewBreaker(cfg BreakerConfig, log zerolog.Logger) *Breaker {
	def := DefaultBreakerConfig("default")
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	b := &Breaker{cfg: cfg, log: log, state: Closed, now: time.Now}
	metricBreakerState.WithLabelValues(cfg.Name).Set(float64(Closed))
	return b
}

// Execute runs op under the breaker's admission policy. While Open it
// returns a CIRCUIT_OPEN fault without invoking op; in HalfOpen exactly
// one trial call is admitted and its outcome decides the next state.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	start := b.now()
	err := op(ctx)
	elapsed := b.now().Sub(start)

	// A canceled caller says nothing about the dependency's health.
	if errors.Is(err, context.Canceled) {
		b.release()
		return err
	}

	b.record(err, elapsed)
	return err
}

// State returns the current state. Note an Open breaker stays Open
// until the next Execute after the cooldown performs the transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerMetrics is a snapshot of the breaker's counters.
type BreakerMetrics struct {
	State               State
	Successes           uint64
	Failures            uint64
	ConsecutiveFailures int
	AvgResponseTime     time.Duration
}

// Metrics returns a consistent snapshot.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerMetrics{
		State:               b.state,
		Successes:           b.successes,
		Failures:            b.failures,
		ConsecutiveFailures: b.consecFailures,
		AvgResponseTime:     b.avgElapsed,
	}
}

// admit decides whether a call may proceed, moving Open to HalfOpen
// once the cooldown has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		wait := b.cfg.Cooldown - b.now().Sub(b.lastFailure)
		if wait > 0 {
			metricBreakerRejected.WithLabelValues(b.cfg.Name).Inc()
			return fault.CircuitOpen(b.cfg.Name, wait)
		}
		b.transition(HalfOpen)
		b.trialInFlight = true
	case HalfOpen:
		if b.trialInFlight {
			metricBreakerRejected.WithLabelValues(b.cfg.Name).Inc()
			return fault.CircuitOpen(b.cfg.Name, 0)
		}
		b.trialInFlight = true
	}
	return nil
}

// release backs out of an admitted call without recording an outcome.
func (b *Breaker) release() {
	b.mu.Lock()
	b.trialInFlight = false
	b.mu.Unlock()
}

// record books the outcome of a measured call and runs the state
// transitions.
func (b *Breaker) record(err error, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	n := time.Duration(b.calls)
	b.avgElapsed = (b.avgElapsed*(n-1) + elapsed) / n
	metricBreakerElapsed.WithLabelValues(b.cfg.Name).Observe(elapsed.Seconds())

	wasTrial := b.trialInFlight
	b.trialInFlight = false

	if err == nil {
		b.successes++
		metricBreakerCalls.WithLabelValues(b.cfg.Name, "success").Inc()
		b.consecFailures = 0
		if b.state != Closed {
			b.transition(Closed)
		}
		return
	}

	b.failures++
	metricBreakerCalls.WithLabelValues(b.cfg.Name, "failure").Inc()
	b.lastFailure = b.now()

	if wasTrial || b.state == HalfOpen {
		b.transition(Open)
		return
	}
	b.consecFailures++
	if b.state == Closed && b.consecFailures >= b.cfg.FailureThreshold {
		b.transition(Open)
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	metricBreakerState.WithLabelValues(b.cfg.Name).Set(float64(to))

	evt := b.log.Warn()
	if to == Closed {
		evt = b.log.Info()
	}
	evt.Str("breaker", b.cfg.Name).
		Stringer("from", from).
		Stringer("to", to).
		Int("consecutive_failures", b.consecFailures).
		Msg("circuit breaker state change")
}
