// Package transport defines the duplex message channel consumed by the
// connection manager.
//
// A [Dialer] constructs a [Transport] and returns immediately; the transport
// opens in the background and reports its lifecycle through the [Handlers]
// supplied at construction. Implementations must deliver all handler calls
// for one transport sequentially from a single goroutine, in the order the
// underlying events occurred. Consumers rely on that ordering to mutate their
// state without additional locking.
//
// This package lives under pkg/ so that alternative transports (in-process
// pipes, test doubles, other socket libraries) can be plugged in from outside
// the module.
package transport

import (
	"errors"
	"fmt"
)

// ReadyState mirrors the lifecycle of a single transport instance.
type ReadyState int

const (
	// Connecting means the transport is still being established.
	Connecting ReadyState = iota

	// Open means frames can be sent and received.
	Open

	// Closing means a close handshake is in progress.
	Closing

	// Closed means the transport is finished and cannot be reused.
	Closed
)

// String returns the lower-case name of the ready state.
func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ReadyState(%d)", int(s))
	}
}

// MessageType distinguishes text frames from binary frames.
type MessageType int

const (
	// Text frames carry UTF-8 text, usually JSON control messages.
	Text MessageType = iota + 1

	// Binary frames carry raw payloads such as PCM audio.
	Binary
)

// String returns "text" or "binary".
func (t MessageType) String() string {
	switch t {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is a single inbound or outbound frame.
type Message struct {
	Type MessageType
	Data []byte
}

// Close codes used by the transports and the connection manager. They follow
// RFC 6455 section 7.4.1.
const (
	CloseNormal         = 1000
	CloseGoingAway      = 1001
	CloseAbnormal       = 1006
	CloseInternalError  = 1011
	CloseServiceRestart = 1012
	CloseTryAgainLater  = 1013
)

// CloseEvent describes why a transport closed.
type CloseEvent struct {
	// Code is the close status code. [CloseAbnormal] is used when the peer
	// vanished without a close frame or the transport never opened.
	Code int

	// Reason is the peer-supplied or locally generated close reason.
	Reason string

	// WasClean reports whether a close handshake completed.
	WasClean bool
}

// Handlers receives lifecycle and message callbacks from a [Transport].
// Nil fields are ignored. Handlers must not block for long: they run on the
// transport's receive goroutine.
type Handlers struct {
	OnOpen    func()
	OnMessage func(Message)
	OnError   func(error)
	OnClose   func(CloseEvent)
}

// Transport is one duplex connection. It is never reused after it closes.
// All methods are safe for concurrent use.
type Transport interface {
	// Send transmits msg. It returns [ErrNotOpen] if the transport is not
	// open. Implementations must not block the caller on network I/O;
	// frames that cannot be accepted immediately fail with an error.
	Send(msg Message) error

	// Close starts the close handshake with the given code and reason. The
	// OnClose handler fires once the transport has closed. Calling Close
	// more than once is safe.
	Close(code int, reason string) error

	// ReadyState reports the current lifecycle state.
	ReadyState() ReadyState
}

// Dialer constructs transports. Dial returns synchronously: a non-nil error
// means the transport could not even be constructed (for example an invalid
// URL). Connection failures after construction are reported through
// [Handlers.OnError] followed by [Handlers.OnClose].
type Dialer interface {
	Dial(url string, h Handlers) (Transport, error)
}

// DialerFunc adapts a plain function to the [Dialer] interface.
type DialerFunc func(url string, h Handlers) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(url string, h Handlers) (Transport, error) { return f(url, h) }

var (
	// ErrNotOpen is returned by Send when the transport is not open.
	ErrNotOpen = errors.New("transport: not open")

	// ErrBackpressure is returned by Send when the outbound queue is full.
	ErrBackpressure = errors.New("transport: send queue full")
)
