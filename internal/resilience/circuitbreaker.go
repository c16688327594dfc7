// Package resilience provides the circuit breaker guarding outbound
// dependencies such as the reservation desk service.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("circuit open")

// State is the breaker's operating mode.
type State int

const (
	// Closed forwards every call. Normal operation.
	Closed State = iota

	// Open rejects every call with [ErrOpen]. Entered after too many
	// consecutive failures, left after the cooldown.
	Open

	// HalfOpen lets a limited number of probe calls through to decide
	// whether the dependency has recovered.
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
	}
	return "unknown"
}

// Settings tunes a [Breaker]. Zero values fall back to the defaults noted on
// each field.
type Settings struct {
	// Name labels the breaker in log output.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing. Default 30s.
	Cooldown time.Duration

	// ProbeQuota is how many consecutive probe calls must succeed in
	// half-open before the breaker closes again. Default 3.
	ProbeQuota int
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	quota     int
	log       *slog.Logger

	mu       sync.Mutex
	state    State
	failures int // consecutive failures in Closed
	probes   int // consecutive successes in HalfOpen
	openedAt time.Time
}

// NewBreaker creates a [Breaker] from s, applying defaults for zero fields.
func NewBreaker(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.ProbeQuota <= 0 {
		s.ProbeQuota = 3
	}
	return &Breaker{
		name:      s.Name,
		threshold: s.FailureThreshold,
		cooldown:  s.Cooldown,
		quota:     s.ProbeQuota,
		log:       slog.Default().With("breaker", s.Name),
	}
}

// Do runs fn if the breaker allows it, otherwise returns [ErrOpen] without
// calling fn. fn's error is passed through unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// allow decides whether a call may proceed and handles the open→half-open
// transition when the cooldown has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.log.Info("circuit half-open, probing")
	}
	return nil
}

// record updates the breaker state from a call outcome.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}

	case HalfOpen:
		// A single failed probe re-opens; quota successes close.
		if err != nil {
			b.trip()
			return
		}
		b.probes++
		if b.probes >= b.quota {
			b.state = Closed
			b.failures = 0
			b.log.Info("circuit closed")
		}
	}
}

// trip moves the breaker to Open. Callers must hold b.mu.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.log.Warn("circuit opened", "consecutive_failures", b.failures)
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the actual transition happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.log.Info("circuit manually reset")
}
