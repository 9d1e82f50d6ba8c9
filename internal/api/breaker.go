package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker fails calls fast while the backend is down instead of letting
// every tap sit on a 10 second timeout. Transport errors and 5xx responses
// count as failures; 4xx responses do not, since the backend answered.
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time

	logger *logrus.Logger
}

func newBreaker(maxFailures int, cooldown time.Duration, logger *logrus.Logger) *breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Second
	}
	return &breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       breakerClosed,
		logger:      logger,
	}
}

// allow reports whether a request may proceed. An open breaker lets one
// probe through after the cooldown by moving to half-open.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if time.Since(b.lastFailure) < b.cooldown {
			return false
		}
		b.setState(breakerHalfOpen)
	}
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != breakerClosed {
		b.setState(breakerClosed)
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == breakerHalfOpen || (b.state == breakerClosed && b.failures >= b.maxFailures) {
		b.setState(breakerOpen)
	}
}

func (b *breaker) setState(next breakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.logger.WithFields(logrus.Fields{
		"from_state": prev.String(),
		"to_state":   next.String(),
		"failures":   b.failures,
	}).Info("API breaker state changed")
}

func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
