package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

type Config struct {
	Name        string
	MaxFailures int
	Timeout     time.Duration
	// HalfOpenMax successes close the circuit again
	HalfOpenMax int
	// IsFailure decides which errors count against the circuit. Nil counts all.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	now         func() time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed, now: time.Now}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.now().Sub(cb.lastFailure) <= cb.cfg.Timeout {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	from := cb.transition(StateHalfOpen)
	cb.mu.Unlock()

	cb.notify(from, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	from := cb.state
	to := from

	if err != nil && cb.countsAsFailure(err) {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			to = StateOpen
		}
	} else if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			to = StateClosed
		}
	} else {
		cb.failures = 0
	}

	if to != from {
		cb.transition(to)
	}
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(to State) State {
	from := cb.state
	cb.state = to
	cb.successes = 0
	if to == StateClosed {
		cb.failures = 0
	}
	return from
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if cb.cfg.IsFailure == nil {
		return true
	}
	return cb.cfg.IsFailure(err)
}

func (cb *CircuitBreaker) notify(from, to State) {
	log.Info().Str("breaker", cb.cfg.Name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
