package scheduler

import "fmt"

// State is the scheduler's lifecycle position.
type State int32

const (
	Idle State = iota
	Walking
	Draining
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Walking:
		return "WALKING"
	case Draining:
		return "DRAINING"
	case Complete:
		return "COMPLETE"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Idle:
		return to == Walking
	case Walking:
		return to == Draining
	case Draining:
		return to == Complete
	default:
		return false
	}
}

// transition moves the scheduler from one state to the next. The caller
// names the expected prior state so misuse is reported instead of ignored.
func (s *Scheduler) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("invalid scheduler transition: expected %s, got %s", from, s.state)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed scheduler transition: %s -> %s", from, to)
	}
	s.state = to
	return nil
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
