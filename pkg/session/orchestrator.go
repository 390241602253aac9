// Package session implements the audio session orchestrator: it binds a
// capture pipeline and a playback sink to a connection, runs the
// start-session handshake, and enforces interruption semantics on inbound
// speech.
//
// An [Orchestrator] is constructed explicitly with its collaborators. Nothing
// is shared between instances, and no state other than configuration
// survives a [Orchestrator.Detach] / [Orchestrator.Attach] cycle.
//
// Threading model: inbound JSON and binary handlers are expected to be called
// one at a time (the connection manager serialises delivery). Capture frames
// and playback loudness arrive on audio threads; those paths only read atomics
// and build messages. Collaborators are never called while the orchestrator's
// lock is held, and outward notifications are delivered in order through an
// [event.Queue].
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/connection"
	"github.com/MrWong99/parley/pkg/event"
	"github.com/MrWong99/parley/pkg/interrupt"
	"github.com/MrWong99/parley/pkg/protocol"
)

// Defaults applied by [New] and [StartOptions].
const (
	DefaultHandshakeTimeout    = 5 * time.Second
	DefaultTargetSampleRate    = 16000
	DefaultPlaybackSampleRate  = 24000
	DefaultFrameSize           = 320
	DefaultCaptureMuteWindow   = 600 * time.Millisecond
	DefaultAmplitudeMuteWindow = 200 * time.Millisecond
)

// Conn is the part of the connection manager the orchestrator uses.
// [*connection.Manager] satisfies it.
type Conn interface {
	SendJSON(v any) error
	OnJSON(fn func(json.RawMessage)) (unsubscribe func())
	OnBinary(fn func([]byte)) (unsubscribe func())
	OnState(fn func(connection.StateChange)) (unsubscribe func())
}

var _ Conn = (*connection.Manager)(nil)

// StartOptions configures one voice session.
type StartOptions struct {
	// Timeout bounds the wait for session_started. Zero means
	// [DefaultHandshakeTimeout].
	Timeout time.Duration

	// TargetSampleRate is the rate of outbound frames. Zero means
	// [DefaultTargetSampleRate].
	TargetSampleRate int

	// SessionID names the voice session in logs. Empty generates a UUID.
	SessionID string
}

func (o StartOptions) withDefaults() StartOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultHandshakeTimeout
	}
	if o.TargetSampleRate <= 0 {
		o.TargetSampleRate = DefaultTargetSampleRate
	}
	return o
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithClock replaces the time source used for the mute windows.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithController replaces the interruption controller. The orchestrator
// becomes its only writer.
func WithController(c *interrupt.Controller) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.ctrl = c
		}
	}
}

// WithCaptureMuteWindow sets how long outbound frames are suppressed after an
// interruption, so the speaker tail is not sent back as user speech.
func WithCaptureMuteWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.captureMute = max(d, 0) }
}

// WithAmplitudeMuteWindow sets how long loudness samples are suppressed after
// an interruption.
func WithAmplitudeMuteWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.ampMute = max(d, 0) }
}

// WithPlaybackSampleRate sets the rate inbound PCM is played at.
func WithPlaybackSampleRate(rate int) Option {
	return func(o *Orchestrator) {
		if rate > 0 {
			o.playbackRate = rate
		}
	}
}

// WithSourceSampleRate sets the capture device rate. Zero lets the capture
// implementation choose.
func WithSourceSampleRate(rate int) Option {
	return func(o *Orchestrator) { o.sourceRate = max(rate, 0) }
}

// WithFrameSize sets the number of samples per outbound frame.
func WithFrameSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.frameSize = n
		}
	}
}

// WithAudioFormat sets the optional audio_format of start_session.
func WithAudioFormat(format string) Option {
	return func(o *Orchestrator) { o.audioFormat = format }
}

// WithStopAction selects the control message sent by StopVoiceSession.
func WithStopAction(a StopAction) Option {
	return func(o *Orchestrator) { o.stopAction = a }
}

// WithObserver installs a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// Orchestrator composes a connection, an interruption controller, and the
// capture and playback pipelines into a voice session.
type Orchestrator struct {
	conn     Conn
	capture  audio.Capture
	playback audio.Playback

	id           string
	now          func() time.Time
	captureMute  time.Duration
	ampMute      time.Duration
	playbackRate int
	sourceRate   int
	frameSize    int
	audioFormat  string
	stopAction   StopAction
	observer     Observer

	captureMuteUntil atomic.Int64
	ampMuteUntil     atomic.Int64
	capturing        atomic.Bool

	// fwd is held across a frame's latch check and its Init and Enqueue,
	// and while interrupt and Detach change what forwarding may do. Taken
	// before mu, never while mu is held.
	fwd sync.Mutex

	mu            sync.Mutex
	state         State
	attached      bool
	subs          event.Subscriptions
	ctrl          *interrupt.Controller
	latched       bool
	latchTurn     string
	pending       *handshake
	voiceID       string
	playbackReady bool
	needsReinit   bool

	queue      event.Queue
	stateEv    event.Emitter[StateChange]
	errorEv    event.Emitter[error]
	ampEv      event.Emitter[float64]
	endedEv    event.Emitter[struct{}]
	decisionEv event.Emitter[interrupt.Decision]
	messageEv  event.Emitter[protocol.Unknown]
}

// handshake is one pending start_session. Whoever removes it from
// Orchestrator.pending under the lock settles it.
type handshake struct {
	done chan struct{}
	err  error
}

func (h *handshake) settle(err error) {
	h.err = err
	close(h.done)
}

// New creates an Orchestrator. It does not subscribe to anything until
// [Orchestrator.Attach] or [Orchestrator.StartVoiceSession].
func New(conn Conn, capture audio.Capture, playback audio.Playback, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conn:         conn,
		capture:      capture,
		playback:     playback,
		id:           uuid.NewString(),
		now:          time.Now,
		captureMute:  DefaultCaptureMuteWindow,
		ampMute:      DefaultAmplitudeMuteWindow,
		playbackRate: DefaultPlaybackSampleRate,
		frameSize:    DefaultFrameSize,
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ctrl == nil {
		o.ctrl = interrupt.New()
	}
	return o
}

// ID returns the orchestrator's identifier.
func (o *Orchestrator) ID() string { return o.id }

// State returns the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Latched reports whether the manual-interrupt latch is set.
func (o *Orchestrator) Latched() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latched
}

// VoiceSessionID returns the id of the current or most recent voice session,
// or "" before the first start and after Detach.
func (o *Orchestrator) VoiceSessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voiceID
}

// Interrupt returns a copy of the interruption controller state.
func (o *Orchestrator) Interrupt() interrupt.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctrl.Snapshot()
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// Attach subscribes to the connection and the playback sink and moves the
// session to ready. Attaching twice is a no-op.
func (o *Orchestrator) Attach() {
	o.mu.Lock()
	if o.attached {
		o.mu.Unlock()
		return
	}
	o.attached = true
	o.subs.Add(
		o.conn.OnJSON(o.handleJSON),
		o.conn.OnBinary(o.handleBinary),
		o.conn.OnState(o.handleConnState),
		o.playback.OnAmplitude(o.handleAmplitude),
		o.playback.OnEnded(o.handleEnded),
	)
	o.setStateLocked(StateReady)
	o.mu.Unlock()
	o.queue.Drain()

	slog.Debug("session: attached", "id", o.id)
}

// Detach stops capture and playback, releases every subscription, resets the
// interruption state, and moves the session to idle. A pending handshake
// fails with [ErrDetached]. Detaching twice is a no-op.
func (o *Orchestrator) Detach() {
	o.fwd.Lock()
	o.mu.Lock()
	if !o.attached {
		o.mu.Unlock()
		o.fwd.Unlock()
		return
	}
	o.attached = false
	o.playbackReady = false
	o.needsReinit = false
	o.capturing.Store(false)
	o.settlePendingLocked(newError(ErrDetached, "start", nil))
	o.mu.Unlock()
	o.fwd.Unlock()

	if err := o.capture.Stop(); err != nil {
		slog.Warn("session: stop capture on detach", "id", o.id, "err", err)
	}
	// Stop before releasing so that an in-progress turn reports ended once.
	o.playback.Stop()
	o.subs.Release()
	if err := o.playback.Close(); err != nil {
		slog.Warn("session: close playback on detach", "id", o.id, "err", err)
	}

	o.mu.Lock()
	o.ctrl.Reset()
	o.latched = false
	o.latchTurn = ""
	o.voiceID = ""
	o.setStateLocked(StateIdle)
	o.mu.Unlock()
	o.queue.Drain()

	slog.Debug("session: detached", "id", o.id)
}

// StartVoiceSession sends start_session and waits for session_started, the
// timeout, or ctx, whichever comes first. Capture is started only after the
// acknowledgement; on success the session is recording.
//
// A timeout returns an error matching [ErrHandshakeTimeout] and a capture
// failure one matching [ErrCaptureStart]; both leave the session in the
// error state.
func (o *Orchestrator) StartVoiceSession(ctx context.Context, opts StartOptions) error {
	opts = opts.withDefaults()
	o.Attach()

	o.mu.Lock()
	if o.pending != nil {
		o.mu.Unlock()
		return newError(ErrHandshakeInProgress, "start", nil)
	}
	if o.state == StateRecording {
		o.mu.Unlock()
		return newError(ErrAlreadyRecording, "start", nil)
	}
	h := &handshake{done: make(chan struct{})}
	o.pending = h
	o.voiceID = opts.SessionID
	if o.voiceID == "" {
		o.voiceID = uuid.NewString()
	}
	voiceID := o.voiceID
	o.setStateLocked(StateStarting)
	o.mu.Unlock()
	o.queue.Drain()

	log := slog.With("id", o.id, "voice_session", voiceID)
	log.Debug("session: starting", "timeout", opts.Timeout, "target_rate", opts.TargetSampleRate)

	began := time.Now()
	if err := o.conn.SendJSON(protocol.StartSession{AudioFormat: o.audioFormat}); err != nil {
		o.settle(h, newError(ErrTransport, "start", err))
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		o.settle(h, newError(ErrHandshakeTimeout, "start", nil))
	case <-ctx.Done():
		o.settle(h, newError(ErrCancelled, "start", ctx.Err()))
	}
	<-h.done

	if err := h.err; err != nil {
		o.observer.HandshakeDone(time.Since(began), outcomeOf(err))
		switch {
		case errors.Is(err, ErrDetached):
		case errors.Is(err, ErrCancelled):
			o.transition(StateStarting, StateReady)
		default:
			o.transition(StateStarting, StateError)
		}
		log.Warn("session: handshake failed", "err", err)
		return err
	}

	o.capturing.Store(true)
	err := o.capture.Start(audio.CaptureConfig{
		SourceSampleRate: o.sourceRate,
		FrameSize:        o.frameSize,
		TargetSampleRate: opts.TargetSampleRate,
	}, audio.CaptureHandlers{
		OnFrame: o.handleFrame,
		OnError: o.handleCaptureError,
	})
	if err != nil {
		o.capturing.Store(false)
		o.observer.HandshakeDone(time.Since(began), OutcomePipeline)
		o.transition(StateStarting, StateError)
		log.Warn("session: capture failed to start", "err", err)
		return newError(ErrCaptureStart, "start", err)
	}

	o.mu.Lock()
	if o.state != StateStarting {
		// Detached or disconnected while capture was starting.
		kind := ErrConnectionLost
		if !o.attached {
			kind = ErrDetached
		}
		o.mu.Unlock()
		o.capturing.Store(false)
		_ = o.capture.Stop()
		o.observer.HandshakeDone(time.Since(began), outcomeOf(kind))
		return newError(kind, "start", nil)
	}
	o.setStateLocked(StateRecording)
	o.mu.Unlock()
	o.queue.Drain()

	o.observer.HandshakeDone(time.Since(began), OutcomeOK)
	log.Info("session: voice session started", "elapsed", time.Since(began))
	return nil
}

// StopVoiceSession stops capture, sends the configured stop action
// (pause_session by default) and returns the session to ready. A pending
// handshake fails with [ErrCancelled].
//
// Callers should check [Orchestrator.State] first; redundant calls send a
// redundant control message.
func (o *Orchestrator) StopVoiceSession() error {
	return o.stop("stop", o.stopAction)
}

// EndVoiceSession is StopVoiceSession with end_session as the control
// message.
func (o *Orchestrator) EndVoiceSession() error {
	return o.stop("end", StopEnd)
}

func (o *Orchestrator) stop(op string, action StopAction) error {
	o.mu.Lock()
	if !o.attached {
		o.mu.Unlock()
		return nil
	}
	o.capturing.Store(false)
	o.settlePendingLocked(newError(ErrCancelled, "start", nil))
	o.setStateLocked(StateStopping)
	o.mu.Unlock()
	o.queue.Drain()

	if err := o.capture.Stop(); err != nil {
		slog.Warn("session: stop capture", "id", o.id, "err", err)
	}

	var msg any = protocol.PauseSession{}
	if action == StopEnd {
		msg = protocol.EndSession{}
	}
	sendErr := o.conn.SendJSON(msg)

	o.transition(StateStopping, StateReady)
	if sendErr != nil {
		return newError(ErrTransport, op, sendErr)
	}
	slog.Info("session: voice session stopped", "id", o.id, "action", action)
	return nil
}

// StopPlayback silences playback immediately. It sets the manual-interrupt
// latch, which drops all inbound audio until a new turn is announced, and
// arms the capture and amplitude mute windows. Safe to call at any time.
func (o *Orchestrator) StopPlayback() {
	o.interrupt(InterruptManual)
}

func (o *Orchestrator) interrupt(source string) {
	now := o.now()
	o.captureMuteUntil.Store(now.Add(o.captureMute).UnixNano())
	o.ampMuteUntil.Store(now.Add(o.ampMute).UnixNano())

	// Once the latch is set under fwd, no frame that passed the check
	// before it can reach Enqueue after the Stop below.
	o.fwd.Lock()
	o.mu.Lock()
	if o.attached {
		o.latched = true
		o.latchTurn = o.ctrl.CurrentSpeechID()
	}
	turn := o.latchTurn
	o.mu.Unlock()
	o.fwd.Unlock()

	o.playback.Stop()
	o.observer.Interrupted(source)
	slog.Debug("session: playback interrupted", "id", o.id, "source", source, "turn", turn)
}

// ── Subscriptions ────────────────────────────────────────────────────────────

// OnState subscribes to session state transitions.
func (o *Orchestrator) OnState(fn func(StateChange)) (unsubscribe func()) { return o.stateEv.On(fn) }

// OnError subscribes to errors that occur outside of a StartVoiceSession call.
func (o *Orchestrator) OnError(fn func(error)) (unsubscribe func()) { return o.errorEv.On(fn) }

// OnAmplitude subscribes to playback loudness, suppressed during the
// amplitude mute window. A playback may deliver it from inside Enqueue, so fn
// must not call StopPlayback or Detach synchronously.
func (o *Orchestrator) OnAmplitude(fn func(float64)) (unsubscribe func()) { return o.ampEv.On(fn) }

// OnPlaybackEnded subscribes to the playback queue running dry.
func (o *Orchestrator) OnPlaybackEnded(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return o.endedEv.On(func(struct{}) { fn() })
}

// OnDecision subscribes to the interruption controller's decisions.
func (o *Orchestrator) OnDecision(fn func(interrupt.Decision)) (unsubscribe func()) {
	return o.decisionEv.On(fn)
}

// OnMessage subscribes to inbound application messages the orchestrator does
// not consume itself, such as transcripts and status updates.
func (o *Orchestrator) OnMessage(fn func(protocol.Unknown)) (unsubscribe func()) {
	return o.messageEv.On(fn)
}

// ── Inbound ──────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleJSON(raw json.RawMessage) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		slog.Debug("session: ignoring undecodable message", "id", o.id, "err", err)
		return
	}

	switch m := msg.(type) {
	case protocol.SessionStarted:
		o.mu.Lock()
		acked := o.settlePendingLocked(nil)
		o.mu.Unlock()
		if !acked {
			slog.Debug("session: unsolicited session_started", "id", o.id)
		}

	case protocol.UserActivity:
		o.mu.Lock()
		d := o.ctrl.OnUserActivity(m.InterruptedSpeechID)
		o.queue.Enqueue(func() { o.decisionEv.Emit(d) })
		o.mu.Unlock()
		o.queue.Drain()
		o.interrupt(InterruptUserActivity)

	case protocol.AudioChunk:
		o.mu.Lock()
		d := o.ctrl.OnAudioChunk(m.SpeechID)
		if o.latched && d.Kind == interrupt.DecisionAllowBinary && (m.SpeechID == "" || m.SpeechID != o.latchTurn) {
			o.latched = false
			o.latchTurn = ""
		}
		o.queue.Enqueue(func() { o.decisionEv.Emit(d) })
		o.mu.Unlock()
		o.queue.Drain()
		if d.ResetDecoder {
			o.resetDecoder()
		}

	case protocol.Unknown:
		o.queue.Post(func() { o.messageEv.Emit(m) })
	}
}

func (o *Orchestrator) resetDecoder() {
	if r, ok := o.playback.(audio.Resetter); ok {
		r.Reset()
	} else {
		o.mu.Lock()
		if o.playbackReady {
			o.needsReinit = true
		}
		o.mu.Unlock()
	}
	o.observer.DecoderReset()
}

func (o *Orchestrator) handleBinary(data []byte) {
	if e := o.forward(data); e != nil {
		o.pipelineError(e)
		return
	}
	o.queue.Drain()
}

// forward plays one inbound frame unless the controller or the latch drops
// it, initialising the playback on first use and after a decoder reset.
func (o *Orchestrator) forward(data []byte) *Error {
	o.fwd.Lock()
	defer o.fwd.Unlock()

	o.mu.Lock()
	switch {
	case !o.attached:
		o.mu.Unlock()
		return nil
	case o.ctrl.SkipNextBinary():
		o.mu.Unlock()
		o.observer.FrameDropped(DropStale)
		return nil
	case o.latched:
		o.mu.Unlock()
		o.observer.FrameDropped(DropLatched)
		return nil
	}
	reinit := o.needsReinit
	needInit := !o.playbackReady || reinit
	o.mu.Unlock()

	if reinit {
		if err := o.playback.Close(); err != nil {
			slog.Debug("session: close playback for decoder reset", "id", o.id, "err", err)
		}
	}
	if needInit {
		if err := o.playback.Init(o.playbackRate); err != nil {
			return newError(ErrPlayback, "playback", err)
		}
		o.mu.Lock()
		o.playbackReady = true
		o.needsReinit = false
		o.mu.Unlock()
	}

	if err := o.playback.Enqueue(data); err != nil {
		return newError(ErrPlayback, "playback", err)
	}

	o.mu.Lock()
	if o.state == StateReady {
		o.setStateLocked(StatePlaying)
	}
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) handleConnState(sc connection.StateChange) {
	if sc.From != connection.StateOpen {
		return
	}

	o.mu.Lock()
	if o.settlePendingLocked(newError(ErrConnectionLost, "start", nil)) {
		o.mu.Unlock()
		return
	}
	if o.state != StateRecording && o.state != StateStarting {
		o.mu.Unlock()
		return
	}
	o.capturing.Store(false)
	o.setStateLocked(StateReady)
	e := newError(ErrConnectionLost, "record", nil)
	o.queue.Enqueue(func() { o.errorEv.Emit(e) })
	o.mu.Unlock()
	o.queue.Drain()

	if err := o.capture.Stop(); err != nil {
		slog.Warn("session: stop capture after connection loss", "id", o.id, "err", err)
	}
	slog.Warn("session: connection lost while recording", "id", o.id, "conn_state", sc.To)
}

// ── Audio paths ──────────────────────────────────────────────────────────────

// handleFrame runs on the capture thread.
func (o *Orchestrator) handleFrame(pcm []byte) {
	if !o.capturing.Load() {
		return
	}
	if o.now().UnixNano() < o.captureMuteUntil.Load() {
		o.observer.FrameDropped(DropCaptureMute)
		return
	}
	if err := o.conn.SendJSON(protocol.StreamData{Samples: audio.BytesToSamples(pcm)}); err != nil {
		o.observer.FrameDropped(DropSendFailed)
		return
	}
	o.observer.FrameSent()
}

func (o *Orchestrator) handleCaptureError(err error) {
	if !o.capturing.CompareAndSwap(true, false) {
		return
	}
	if stopErr := o.capture.Stop(); stopErr != nil {
		slog.Debug("session: stop failed capture", "id", o.id, "err", stopErr)
	}
	o.pipelineError(newError(ErrCapture, "capture", err))
}

// handleAmplitude runs on the playback dispatcher.
func (o *Orchestrator) handleAmplitude(v float64) {
	if o.now().UnixNano() < o.ampMuteUntil.Load() {
		return
	}
	o.ampEv.Emit(v)
}

func (o *Orchestrator) handleEnded() {
	o.mu.Lock()
	if o.state == StatePlaying {
		o.setStateLocked(StateReady)
	}
	o.queue.Enqueue(func() { o.endedEv.Emit(struct{}{}) })
	o.mu.Unlock()
	o.queue.Drain()
}

// pipelineError fails a pending handshake with e, or else moves the session
// to error and reports e through OnError.
func (o *Orchestrator) pipelineError(e *Error) {
	o.mu.Lock()
	if o.settlePendingLocked(e) {
		o.mu.Unlock()
		return
	}
	if o.attached {
		o.setStateLocked(StateError)
	}
	o.queue.Enqueue(func() { o.errorEv.Emit(e) })
	o.mu.Unlock()
	o.queue.Drain()

	slog.Warn("session: pipeline error", "id", o.id, "err", e)
}

// ── Internals ────────────────────────────────────────────────────────────────

func (o *Orchestrator) settle(h *handshake, err error) {
	o.mu.Lock()
	if o.pending == h {
		o.pending = nil
		h.settle(err)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) settlePendingLocked(err error) bool {
	h := o.pending
	if h == nil {
		return false
	}
	o.pending = nil
	h.settle(err)
	return true
}

// transition moves from → to if the session is still in from.
func (o *Orchestrator) transition(from, to State) {
	o.mu.Lock()
	if o.state == from {
		o.setStateLocked(to)
	}
	o.mu.Unlock()
	o.queue.Drain()
}

func (o *Orchestrator) setStateLocked(to State) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	sc := StateChange{From: from, To: to}
	o.queue.Enqueue(func() { o.stateEv.Emit(sc) })
	slog.Debug("session: state", "id", o.id, "from", from, "to", to)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrHandshakeTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrCaptureStart), errors.Is(err, ErrCapture), errors.Is(err, ErrPlayback):
		return OutcomePipeline
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, ErrDetached):
		return OutcomeDetached
	case errors.Is(err, ErrConnectionLost):
		return OutcomeDisconnect
	default:
		return OutcomeTransport
	}
}
