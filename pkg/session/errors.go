package session

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned or emitted by the Orchestrator is an
// [*Error] that matches exactly one of these with [errors.Is].
var (
	// ErrHandshakeTimeout means no session_started arrived in time. The
	// transport may be healthy; retrying the handshake is reasonable.
	ErrHandshakeTimeout = errors.New("session: handshake timed out")

	// ErrCaptureStart means the capture pipeline could not be started after
	// the handshake succeeded.
	ErrCaptureStart = errors.New("session: capture failed to start")

	// ErrCapture is a failure of a running capture pipeline.
	ErrCapture = errors.New("session: capture failed")

	// ErrPlayback is a failure of the playback pipeline.
	ErrPlayback = errors.New("session: playback failed")

	// ErrTransport means a control message could not be sent.
	ErrTransport = errors.New("session: transport failure")

	// ErrDetached means the orchestrator was detached while the operation
	// was in flight.
	ErrDetached = errors.New("session: detached")

	// ErrHandshakeInProgress means StartVoiceSession was called while
	// another handshake was pending.
	ErrHandshakeInProgress = errors.New("session: handshake already in progress")

	// ErrAlreadyRecording means StartVoiceSession was called while a voice
	// session was recording.
	ErrAlreadyRecording = errors.New("session: already recording")

	// ErrCancelled means the handshake was abandoned by the caller, either
	// through the context or by StopVoiceSession.
	ErrCancelled = errors.New("session: handshake cancelled")

	// ErrConnectionLost means the connection dropped during a handshake or
	// while recording.
	ErrConnectionLost = errors.New("session: connection lost")
)

// Error describes a failed orchestrator operation.
type Error struct {
	// Kind is one of the sentinel errors of this package.
	Kind error

	// Op is the operation that failed, e.g. "start" or "playback".
	Op string

	// Err is the underlying cause. May be nil.
	Err error
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to [errors.Is] and [errors.As].
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
