package connection

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a [Manager].
type State int

const (
	// StateIdle is the initial state before the first Connect.
	StateIdle State = iota

	// StateConnecting means a transport has been constructed and is opening.
	StateConnecting

	// StateOpen means the transport is open and Send calls succeed.
	StateOpen

	// StateReconnecting means the connection was lost and a retry is
	// scheduled.
	StateReconnecting

	// StateClosing means a manual disconnect is in progress.
	StateClosing

	// StateClosed is terminal until the next Connect: either the caller
	// disconnected or the reconnect policy gave up.
	StateClosed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateChange is emitted on every state transition.
type StateChange struct {
	From State
	To   State

	// Attempt is the 1-based reconnect attempt that was scheduled. Only set
	// when To is [StateReconnecting].
	Attempt int

	// Delay is the wait before the scheduled attempt. Only set when To is
	// [StateReconnecting].
	Delay time.Duration
}
