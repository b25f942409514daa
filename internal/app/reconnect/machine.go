package reconnect

import (
	"sync"
	"time"
)

// State is a snapshot of the retry bookkeeping for one relay session.
type State struct {
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	InProgress  bool      `json:"in_progress"`
}

// Decision is what the supervisor acts on after an upstream failure.
type Decision struct {
	Verdict Verdict
	Delay   time.Duration
	Attempt int // 1-based attempt the delay precedes; 0 on GiveUp
	Code    int
}

func (d Decision) Retry() bool { return d.Verdict == Retry }

// Machine counts attempts across consecutive failures. Attempts only grow until
// Reset is called after a successful reconnection.
type Machine struct {
	policy Policy
	now    func() time.Time

	mu    sync.Mutex
	state State
}

func NewMachine(p Policy) *Machine {
	return &Machine{policy: p, now: time.Now}
}

// Next classifies a failure and, on Retry, books the attempt.
func (m *Machine) Next(code int) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.policy.Classify(m.state.Attempts, code) == GiveUp {
		m.state.InProgress = false
		return Decision{Verdict: GiveUp, Code: code}
	}
	delay := m.policy.Delay(m.state.Attempts, code)
	m.state.Attempts++
	m.state.LastAttempt = m.now()
	m.state.InProgress = true
	return Decision{Verdict: Retry, Delay: delay, Attempt: m.state.Attempts, Code: code}
}

func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Policy() Policy { return m.policy }
