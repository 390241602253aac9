// Package interrupt decides whether inbound synthesized audio is stale after
// the user interrupts the assistant.
//
// The [Controller] correlates the turn identifiers carried by audio_chunk and
// user_activity control messages. It performs no I/O and owns no timers; its
// only output is a [Decision] per control message plus the
// [Controller.SkipNextBinary] check consulted for each binary frame.
//
// A Controller is not safe for concurrent use. Callers feed it from a single
// goroutine (or under a lock), in the order messages arrived.
package interrupt

import "fmt"

// DecisionKind tells the caller what to do with upcoming binary audio.
type DecisionKind int

const (
	// DecisionNone means the message does not affect audio forwarding.
	DecisionNone DecisionKind = iota

	// DecisionAllowBinary means the following binary frames are live.
	DecisionAllowBinary

	// DecisionDropNextBinary means the following binary frame belongs to an
	// interrupted turn and must be discarded.
	DecisionDropNextBinary
)

// String returns the snake_case name of the decision kind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionNone:
		return "none"
	case DecisionAllowBinary:
		return "allow_binary"
	case DecisionDropNextBinary:
		return "drop_next_binary"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is the outcome of feeding one control message to the Controller.
type Decision struct {
	Kind DecisionKind

	// ResetDecoder is set on the first new turn after an interruption: the
	// playback decoder must drop any buffered state before the next frame.
	ResetDecoder bool
}

// State is a snapshot of the controller. Empty ids mean "no turn".
type State struct {
	InterruptedSpeechID    string
	CurrentPlayingSpeechID string
	PendingDecoderReset    bool
	SkipNextBinary         bool
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithRecordInterruptedID makes OnUserActivity record the interrupted turn id
// reported by the server. It is off by default because the server may
// announce the next turn before the interruption notice, which would mark
// fresh audio as stale.
func WithRecordInterruptedID(record bool) Option {
	return func(c *Controller) { c.recordID = record }
}

// Controller is the speech interruption state machine.
type Controller struct {
	recordID bool
	s        State
}

// New creates a Controller in its initial state.
func New(opts ...Option) *Controller {
	c := &Controller{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnUserActivity handles a user_activity message. It arms a decoder reset for
// the next new turn and clears the skip flag. Silencing current playback is
// the caller's job; the returned decision is always [DecisionNone].
func (c *Controller) OnUserActivity(interruptedID string) Decision {
	c.s.PendingDecoderReset = true
	c.s.SkipNextBinary = false
	if c.recordID && interruptedID != "" {
		c.s.InterruptedSpeechID = interruptedID
	}
	return Decision{Kind: DecisionNone}
}

// Latch records speechID as interrupted so that later audio announced with
// the same id is dropped. An empty id is ignored.
func (c *Controller) Latch(speechID string) {
	if speechID != "" {
		c.s.InterruptedSpeechID = speechID
	}
}

// OnAudioChunk handles an audio_chunk message announcing speechID.
func (c *Controller) OnAudioChunk(speechID string) Decision {
	if speechID != "" && speechID == c.s.InterruptedSpeechID {
		c.s.SkipNextBinary = true
		return Decision{Kind: DecisionDropNextBinary}
	}

	if speechID != "" && speechID != c.s.CurrentPlayingSpeechID {
		reset := c.s.PendingDecoderReset
		c.s.PendingDecoderReset = false
		c.s.CurrentPlayingSpeechID = speechID
		c.s.InterruptedSpeechID = ""
		c.s.SkipNextBinary = false
		return Decision{Kind: DecisionAllowBinary, ResetDecoder: reset}
	}

	c.s.SkipNextBinary = false
	return Decision{Kind: DecisionAllowBinary}
}

// SkipNextBinary reports whether the next binary frame must be dropped.
func (c *Controller) SkipNextBinary() bool { return c.s.SkipNextBinary }

// CurrentSpeechID returns the turn currently being played, or "".
func (c *Controller) CurrentSpeechID() string { return c.s.CurrentPlayingSpeechID }

// Reset returns the controller to its initial state.
func (c *Controller) Reset() { c.s = State{} }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State { return c.s }
