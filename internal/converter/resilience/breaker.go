package resilience

import (
	"sync"
	"time"

	"github.com/langowen/converter/internal/entities"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	return [...]string{"closed", "open", "half_open"}[s]
}

type BreakerSettings struct {
	FailureThreshold int
	Cooldown         time.Duration
	OnStateChange    func(name string, from, to State)
}

// CircuitBreaker counts consecutive transient failures of one target.
// The lock only guards transitions, it is never held while a call runs.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	onChange  func(name string, from, to State)
	now       func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	failures   int
	openedAt   time.Time
	trial      bool
}

// Ticket identifies one admitted call. Outcomes of calls admitted before the
// last state change are ignored.
type Ticket struct {
	generation uint64
	trial      bool
}

func NewCircuitBreaker(name string, st BreakerSettings) *CircuitBreaker {
	threshold := st.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}

	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  st.Cooldown,
		onChange:  st.OnStateChange,
		now:       time.Now,
		state:     StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refresh()
	return cb.state
}

// Allow reserves a slot for one call. Every successful Allow must be
// followed by exactly one Done with the returned ticket.
func (cb *CircuitBreaker) Allow() (Ticket, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refresh()

	switch cb.state {
	case StateOpen:
		return Ticket{}, entities.ErrCircuitOpen
	case StateHalfOpen:
		if cb.trial {
			return Ticket{}, entities.ErrCircuitOpen
		}
		cb.trial = true
		return Ticket{generation: cb.generation, trial: true}, nil
	}

	return Ticket{generation: cb.generation}, nil
}

func (cb *CircuitBreaker) Done(t Ticket, outcome Outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refresh()
	if t.generation != cb.generation {
		return
	}

	trial := t.trial && cb.state == StateHalfOpen
	if trial {
		cb.trial = false
	}

	switch outcome {
	case OutcomeSuccess, OutcomePermanent:
		// the upstream answered, so it is reachable
		cb.failures = 0
		if trial {
			cb.setState(StateClosed)
		}
	case OutcomeTransient:
		cb.failures++
		if trial || (cb.state == StateClosed && cb.failures >= cb.threshold) {
			cb.open()
		}
	case OutcomeCanceled:
	}
}

// refresh moves an expired open breaker to half-open. Caller holds mu.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && !cb.now().Before(cb.openedAt.Add(cb.cooldown)) {
		cb.trial = false
		cb.setState(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
