package session

import "fmt"

// State is the lifecycle position of a measurement
type State int

const (
	Idle State = iota
	Stabilizing
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stabilizing:
		return "stabilizing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "stabilizing":
		*s = Stabilizing
	case "running":
		*s = Running
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}
