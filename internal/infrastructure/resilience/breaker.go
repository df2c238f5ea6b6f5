package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("circuit breaker is probing")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the circuit
	Threshold uint32
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// Probes is the number of half-open successes needed to close again;
	// it also caps concurrent half-open calls
	Probes uint32
	// IsFailure decides whether an error counts against the circuit.
	// Defaults to any non-nil error.
	IsFailure func(err error) bool
	// OnStateChange is called, without the lock held, on every transition
	OnStateChange func(name string, from, to State)
	// Now overrides the clock in tests
	Now func() time.Time
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name string
	s    Settings

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	probing   uint32
	openUntil time.Time
	trips     uint64
}

// New creates a new circuit breaker with the given settings
func New(name string, s Settings) *Breaker {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Cooldown == 0 {
		s.Cooldown = 5 * time.Second
	}
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return err != nil }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{name: name, s: s}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	state, notify := b.refresh()
	b.mu.Unlock()
	notify()
	return state
}

// Trips returns how many times the circuit has opened.
func (b *Breaker) Trips() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// Execute runs fn if the circuit admits it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}

	var ferr error
	defer func() {
		if p := recover(); p != nil {
			done(errPanicked)
			panic(p)
		}
		done(ferr)
	}()

	ferr = fn()
	return ferr
}

// Do is Execute for calls that return a value.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

var errPanicked = errors.New("panic")

// Allow admits one call. The caller must invoke done exactly once with the
// call's result.
func (b *Breaker) Allow() (done func(error), err error) {
	b.mu.Lock()
	state, notify := b.refresh()
	switch state {
	case StateOpen:
		b.mu.Unlock()
		notify()
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing >= b.s.Probes {
			b.mu.Unlock()
			notify()
			return nil, ErrTooManyRequests
		}
		b.probing++
	}
	b.mu.Unlock()
	notify()

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.record(state, err) })
	}, nil
}

func (b *Breaker) record(admitted State, err error) {
	failed := err != nil && b.s.IsFailure(err)

	b.mu.Lock()
	if admitted == StateHalfOpen && b.probing > 0 {
		b.probing--
	}
	// results from calls admitted under an earlier state are stale
	if admitted != b.state {
		b.mu.Unlock()
		return
	}

	var notify func()
	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.s.Threshold {
			notify = b.transition(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			notify = b.transition(StateOpen)
			break
		}
		b.successes++
		if b.successes >= b.s.Probes {
			notify = b.transition(StateClosed)
		}
	}
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// refresh must be called with mu held. The returned func fires the
// state-change hook and must be called after unlocking.
func (b *Breaker) refresh() (State, func()) {
	if b.state == StateOpen && !b.s.Now().Before(b.openUntil) {
		return StateHalfOpen, b.transition(StateHalfOpen)
	}
	return b.state, func() {}
}

func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	b.failures, b.successes, b.probing = 0, 0, 0
	if to == StateOpen {
		b.openUntil = b.s.Now().Add(b.s.Cooldown)
		b.trips++
	}

	hook := b.s.OnStateChange
	if hook == nil || from == to {
		return func() {}
	}
	return func() { hook(b.name, from, to) }
}
