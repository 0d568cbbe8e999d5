// Package breaker implements a per-tool circuit breaker.
//
// Each tool gets an independent CLOSED / OPEN / HALF_OPEN state machine.
// Failures reported through RecordFailure trip the breaker after a
// threshold; once the cooldown elapses a single probe is admitted, and
// enough probe successes close the circuit again.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit state for one tool.
type State string

const (
	// StateClosed admits all calls; failures are counted.
	StateClosed State = "closed"

	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen State = "open"

	// StateHalfOpen admits a single probe at a time.
	StateHalfOpen State = "half_open"
)

// Config contains the breaker thresholds applied to every tool.
type Config struct {
	// FailureThreshold is the number of consecutive failures in CLOSED
	// that trips the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of successes in HALF_OPEN that
	// closes the circuit.
	SuccessThreshold int

	// Timeout is the OPEN cooldown before a probe is admitted.
	Timeout time.Duration
}

// DefaultConfig returns a breaker that opens after 5 failures, probes
// after 30 seconds, and closes after 2 successes.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// Breaker holds one circuit per tool. Tool state is created lazily on
// first reference; transitions are atomic under a per-tool lock.
type Breaker struct {
	config Config
	logger *slog.Logger

	mu    sync.Mutex
	tools map[string]*circuit
}

type circuit struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// New creates a breaker with the given configuration.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Breaker{
		config: config,
		logger: slog.Default().With("component", "reliability.breaker"),
		tools:  make(map[string]*circuit),
	}
}

// IsOpen reports whether calls to the tool must be rejected.
//
// In OPEN, once the cooldown has elapsed the circuit transitions to
// HALF_OPEN and this call returns false, admitting exactly one probe;
// concurrent callers see true until the probe's outcome is recorded.
func (b *Breaker) IsOpen(tool string) bool {
	c := b.circuit(tool)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return false

	case StateOpen:
		if time.Since(c.openedAt) < b.config.Timeout {
			return true
		}
		c.state = StateHalfOpen
		c.successes = 0
		c.probing = true
		b.logger.Info("circuit half-open", "tool", tool)
		return false

	case StateHalfOpen:
		if c.probing {
			return true
		}
		c.probing = true
		return false
	}
	return false
}

// RecordSuccess reports a successful tool call. In HALF_OPEN it counts
// toward closing the circuit; in CLOSED it clears the failure count.
func (b *Breaker) RecordSuccess(tool string) {
	c := b.circuit(tool)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		c.failures = 0

	case StateHalfOpen:
		c.probing = false
		c.successes++
		if c.successes >= b.config.SuccessThreshold {
			c.state = StateClosed
			c.failures = 0
			c.successes = 0
			b.logger.Info("circuit closed", "tool", tool)
		}
	}
}

// RecordFailure reports a failed tool call. In CLOSED it counts toward
// the failure threshold; in HALF_OPEN any failure reopens the circuit.
func (b *Breaker) RecordFailure(tool string) {
	c := b.circuit(tool)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		c.failures++
		if c.failures >= b.config.FailureThreshold {
			b.openLocked(c, tool)
		}

	case StateHalfOpen:
		c.probing = false
		b.openLocked(c, tool)
	}
}

// State returns the current state for the tool without side effects.
func (b *Breaker) State(tool string) State {
	c := b.circuit(tool)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset returns the tool's circuit to CLOSED with zeroed counters.
func (b *Breaker) Reset(tool string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tools, tool)
}

func (b *Breaker) openLocked(c *circuit, tool string) {
	c.state = StateOpen
	c.openedAt = time.Now()
	c.successes = 0
	b.logger.Warn("circuit opened", "tool", tool, "failures", c.failures)
}

func (b *Breaker) circuit(tool string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.tools[tool]
	if !ok {
		c = &circuit{state: StateClosed}
		b.tools[tool] = c
	}
	return c
}
