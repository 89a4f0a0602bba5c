package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var ErrOpen = errors.New("circuit breaker is open")

// Breaker trips open after too many failures inside a sliding window and
// lets a single probe through after the cooldown. Collaborator clients wrap
// every outbound call in Do and decide their own fallback on ErrOpen.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration
	window      time.Duration

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time
}

func New(maxFailures int, cooldown time.Duration) *Breaker {
	return NewWithWindow(maxFailures, cooldown, 60*time.Second)
}

func NewWithWindow(maxFailures int, cooldown, window time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		window:      window,
		state:       StateClosed,
	}
}

// Do runs fn unless the breaker is open and still cooling down, in which
// case it returns ErrOpen without calling fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.failures = b.failures[:0]
	}
	b.mu.Unlock()

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.failures = trimBefore(b.failures, now.Add(-b.window))

	if err != nil {
		b.failures = append(b.failures, now)
		if len(b.failures) > b.maxFailures || b.state == StateHalfOpen {
			b.state = StateOpen
			b.openedAt = now
		}
		return
	}
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = b.failures[:0]
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func trimBefore(failures []time.Time, cutoff time.Time) []time.Time {
	kept := failures[:0]
	for _, at := range failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}
