package session

import "time"

// Handshake outcomes reported to [Observer.HandshakeDone].
const (
	OutcomeOK         = "ok"
	OutcomeTimeout    = "timeout"
	OutcomePipeline   = "pipeline_error"
	OutcomeTransport  = "transport_error"
	OutcomeCancelled  = "cancelled"
	OutcomeDetached   = "detached"
	OutcomeDisconnect = "connection_lost"
)

// Reasons reported to [Observer.FrameDropped].
const (
	DropCaptureMute = "capture_mute"
	DropSendFailed  = "send_failed"
	DropStale       = "stale_turn"
	DropLatched     = "interrupt_latch"
	DropAmplitude   = "amplitude_mute"
)

// Sources reported to [Observer.Interrupted].
const (
	InterruptUserActivity = "user_activity"
	InterruptManual       = "manual"
)

// Observer receives counters from the orchestrator's hot paths. Methods must
// be cheap and must not block; they may be called from audio threads.
type Observer interface {
	HandshakeDone(d time.Duration, outcome string)
	FrameSent()
	FrameDropped(reason string)
	Interrupted(source string)
	DecoderReset()
}

type nopObserver struct{}

func (nopObserver) HandshakeDone(time.Duration, string) {}
func (nopObserver) FrameSent()                          {}
func (nopObserver) FrameDropped(string)                 {}
func (nopObserver) Interrupted(string)                  {}
func (nopObserver) DecoderReset()                       {}
