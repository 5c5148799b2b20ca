package checkout

import (
	"errors"
	"sync"
)

var ErrCheckoutInProgress = errors.New("checkout already in progress")

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Machine admits one checkout at a time. Begin is the only way out of idle.
type Machine struct {
	mu    sync.Mutex
	state State
}

func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrCheckoutInProgress
	}
	m.state = StateSubmitting
	return nil
}

func (m *Machine) Finish(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSubmitting {
		return
	}
	if ok {
		m.state = StateSuccess
	} else {
		m.state = StateFailed
	}
}

func (m *Machine) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSuccess || m.state == StateFailed {
		m.state = StateIdle
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Sessions hands out one Machine per terminal session. A machine lives only
// while a checkout holds it, so the map stays as small as the number of
// checkouts in flight.
type Sessions struct {
	mu       sync.Mutex
	machines map[string]*sessionEntry
}

type sessionEntry struct {
	machine *Machine
	refs    int
}

func NewSessions() *Sessions {
	return &Sessions{machines: map[string]*sessionEntry{}}
}

// Acquire returns the session's machine and pins it until Done.
func (s *Sessions) Acquire(session string) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.machines[session]
	if !ok {
		e = &sessionEntry{machine: &Machine{}}
		s.machines[session] = e
	}
	e.refs++
	return e.machine
}

// Done unpins the machine and drops it once nobody holds it and it is idle.
func (s *Sessions) Done(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.machines[session]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 && e.machine.State() == StateIdle {
		delete(s.machines, session)
	}
}

// State reports the session's state without creating a machine for it.
func (s *Sessions) State(session string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.machines[session]; ok {
		return e.machine.State()
	}
	return StateIdle
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.machines)
}
