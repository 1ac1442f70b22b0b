// ABOUTME: Player states of the session state machine
// ABOUTME: Disconnected through Draining, with Error reachable from any state
package session

// State is the machine's current phase
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateIdle
	StateBuffering
	StatePlaying
	StatePaused
	StateDraining
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateError:
		return "error"
	}
	return "unknown"
}

// MarshalText lets State appear by name in JSON status
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
