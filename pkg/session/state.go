package session

import "fmt"

// State is the lifecycle state of an [Orchestrator].
//
// Legal transitions: idle → ready (Attach) → starting → recording → stopping
// → ready, with error reachable from starting and recording. playing is
// reported while inbound speech is forwarded outside of a recording session.
// Detach returns to idle from any state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateRecording
	StatePlaying
	StateStopping
	StateError
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateChange is emitted on every session state transition.
type StateChange struct {
	From State
	To   State
}

// StopAction selects the control message sent by StopVoiceSession.
type StopAction int

const (
	// StopPause sends pause_session, keeping the server-side session.
	StopPause StopAction = iota

	// StopEnd sends end_session.
	StopEnd
)

// String returns "pause" or "end".
func (a StopAction) String() string {
	if a == StopEnd {
		return "end"
	}
	return "pause"
}

// ParseStopAction maps "pause" and "end" to a StopAction. The empty string
// means pause.
func ParseStopAction(s string) (StopAction, error) {
	switch s {
	case "", "pause":
		return StopPause, nil
	case "end":
		return StopEnd, nil
	default:
		return StopPause, fmt.Errorf("session: unknown stop action %q", s)
	}
}
