// Package connection owns the duplex link to the voice backend.
//
// A [Manager] holds at most one [transport.Transport] at a time. It
// reconnects after unexpected closes using exponential backoff with jitter
// ([ReconnectPolicy]), keeps the link alive with a heartbeat
// ([HeartbeatConfig]), and demultiplexes inbound frames into typed event
// streams: every frame is published as a message, text frames additionally as
// text and, when they parse, as JSON, and binary frames as binary.
//
// Events are delivered through a serial queue: handlers never run
// concurrently with each other, always observe events in the order the
// manager's state changed, and may call back into the manager.
package connection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/pkg/event"
	"github.com/MrWong99/parley/pkg/protocol"
	"github.com/MrWong99/parley/pkg/transport"
	"github.com/MrWong99/parley/pkg/transport/websocket"
)

// ErrNotOpen is returned by the send methods when the manager is not open.
// It is the same sentinel the transports use.
var ErrNotOpen = transport.ErrNotOpen

// HeartbeatConfig configures the keep-alive sent while the link is open.
type HeartbeatConfig struct {
	// Interval between heartbeats. Non-positive disables the heartbeat.
	Interval time.Duration

	// Payload is sent on every tick. A string is sent verbatim as a text
	// frame; any other value is JSON-encoded. Nil means [protocol.Ping].
	Payload any

	// PayloadFunc, when set, produces the payload for each tick and takes
	// precedence over Payload.
	PayloadFunc func() any
}

func (h HeartbeatConfig) payload() any {
	switch {
	case h.PayloadFunc != nil:
		return h.PayloadFunc()
	case h.Payload != nil:
		return h.Payload
	default:
		return protocol.Ping()
	}
}

// Config configures a [Manager].
type Config struct {
	// URL is the backend address passed to the Dialer.
	URL string

	// Dialer constructs transports. Nil means a default websocket dialer.
	// Dial and Transport.Close must not invoke the transport handlers
	// synchronously.
	Dialer transport.Dialer

	// Reconnect is the reconnection policy.
	Reconnect ReconnectPolicy

	// Heartbeat is the keep-alive configuration.
	Heartbeat HeartbeatConfig
}

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithRandom overrides the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(m *Manager) {
		if fn != nil {
			m.random = fn
		}
	}
}

// WithHeartbeatErrorHandler registers fn to be called whenever a heartbeat
// cannot be sent. Heartbeat failures are otherwise only logged.
func WithHeartbeatErrorHandler(fn func(error)) Option {
	return func(m *Manager) { m.onHeartbeatErr = fn }
}

// Manager owns one duplex connection and its reconnect and heartbeat timers.
// All methods are safe for concurrent use.
type Manager struct {
	id             string
	url            string
	dialer         transport.Dialer
	policy         ReconnectPolicy
	heartbeat      HeartbeatConfig
	random         func() float64
	onHeartbeatErr func(error)

	mu          sync.Mutex
	state       State
	tr          transport.Transport
	gen         uint64
	attempts    int
	manualClose bool
	exhausted   bool
	retry       *time.Timer
	hbStop      chan struct{}

	queue    event.Queue
	stateEv  event.Emitter[StateChange]
	openEv   event.Emitter[struct{}]
	closeEv  event.Emitter[transport.CloseEvent]
	errorEv  event.Emitter[error]
	msgEv    event.Emitter[transport.Message]
	textEv   event.Emitter[string]
	jsonEv   event.Emitter[json.RawMessage]
	binaryEv event.Emitter[[]byte]
}

// New creates a Manager in [StateIdle]. It does not connect.
func New(cfg Config, opts ...Option) *Manager {
	d := cfg.Dialer
	if d == nil {
		d = websocket.New()
	}
	m := &Manager{
		id:        uuid.NewString(),
		url:       cfg.URL,
		dialer:    d,
		policy:    cfg.Reconnect.normalized(),
		heartbeat: cfg.Heartbeat,
		random:    rand.Float64,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ID returns the identifier used in log records.
func (m *Manager) ID() string { return m.id }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnect attempts made since the last
// successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Exhausted reports whether the manager is closed because the reconnect
// policy gave up, as opposed to a manual disconnect.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// Connect starts connecting. It is a no-op while connecting or open. From
// reconnecting it skips the pending wait and dials immediately; from idle or
// closed it also resets the attempt counter.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	if m.state != StateReconnecting {
		m.attempts = 0
	}
	m.manualClose = false
	m.exhausted = false
	m.dialLocked()
	m.mu.Unlock()
	m.queue.Drain()
}

// Disconnect closes the connection and suppresses reconnection until the next
// Connect. Both timers are cancelled. Calling it again is safe.
func (m *Manager) Disconnect(code int, reason string) {
	if code == 0 {
		code = transport.CloseNormal
	}

	m.mu.Lock()
	m.manualClose = true
	m.stopTimersLocked()
	if m.state == StateIdle || m.state == StateClosed || m.state == StateClosing {
		m.exhausted = false
		m.mu.Unlock()
		return
	}
	m.exhausted = false
	m.setStateLocked(StateChange{To: StateClosing})
	tr := m.detachLocked()
	if tr != nil {
		if err := tr.Close(code, reason); err != nil {
			slog.Debug("connection: close transport", "conn_id", m.id, "err", err)
		}
		ev := transport.CloseEvent{Code: code, Reason: reason, WasClean: true}
		m.queue.Enqueue(func() { m.closeEv.Emit(ev) })
	}
	m.setStateLocked(StateChange{To: StateClosed})
	m.mu.Unlock()
	m.queue.Drain()

	slog.Info("connection: disconnected", "conn_id", m.id, "code", code, "reason", reason)
}

// dialLocked constructs a new transport, detaching any previous one first.
func (m *Manager) dialLocked() {
	if old := m.detachLocked(); old != nil {
		_ = old.Close(transport.CloseNormal, "replaced")
	}
	gen := m.gen

	m.setStateLocked(StateChange{To: StateConnecting})
	tr, err := m.dialer.Dial(m.url, transport.Handlers{
		OnOpen:    func() { m.handleOpen(gen) },
		OnMessage: func(msg transport.Message) { m.handleMessage(gen, msg) },
		OnError:   func(err error) { m.handleError(gen, err) },
		OnClose:   func(ev transport.CloseEvent) { m.handleClose(gen, ev) },
	})
	if err != nil {
		slog.Warn("connection: construct transport", "conn_id", m.id, "url", m.url, "err", err)
		m.setStateLocked(StateChange{To: StateClosed})
		m.queue.Enqueue(func() { m.errorEv.Emit(err) })
		m.lostLocked(transport.CloseEvent{Code: transport.CloseAbnormal, Reason: err.Error()})
		return
	}
	m.tr = tr
}

// detachLocked forgets the current transport and invalidates its handlers.
func (m *Manager) detachLocked() transport.Transport {
	m.stopHeartbeatLocked()
	tr := m.tr
	m.tr = nil
	m.gen++
	return tr
}

// lostLocked applies the reconnect policy after an unexpected close.
func (m *Manager) lostLocked(ev transport.CloseEvent) {
	m.stopHeartbeatLocked()
	if m.manualClose {
		m.setStateLocked(StateChange{To: StateClosed})
		return
	}

	p := m.policy
	if p.MaxAttempts > 0 && m.attempts >= p.MaxAttempts {
		slog.Warn("connection: reconnect attempts exhausted", "conn_id", m.id, "attempts", m.attempts)
		m.exhausted = true
		m.setStateLocked(StateChange{To: StateClosed})
		return
	}
	if p.ShouldReconnect != nil && !p.ShouldReconnect(ev, m.attempts) {
		slog.Info("connection: reconnect declined by policy", "conn_id", m.id, "code", ev.Code)
		m.exhausted = true
		m.setStateLocked(StateChange{To: StateClosed})
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := p.Delay(attempt, m.random())
	gen := m.gen
	m.retry = time.AfterFunc(delay, func() { m.reconnect(gen) })

	slog.Info("connection: reconnect scheduled", "conn_id", m.id, "attempt", attempt, "delay", delay, "code", ev.Code)
	m.setStateLocked(StateChange{To: StateReconnecting, Attempt: attempt, Delay: delay})
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateReconnecting || m.manualClose {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.dialLocked()
	m.mu.Unlock()
	m.queue.Drain()
}

// setStateLocked records a transition and queues its notification. Repeated
// transitions to the current state are ignored.
func (m *Manager) setStateLocked(sc StateChange) {
	if sc.To == m.state {
		return
	}
	sc.From = m.state
	m.state = sc.To
	m.queue.Enqueue(func() { m.stateEv.Emit(sc) })
}

func (m *Manager) stopTimersLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.stopHeartbeatLocked()
}

// ── Transport handlers ───────────────────────────────────────────────────────

func (m *Manager) handleOpen(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.exhausted = false
	m.setStateLocked(StateChange{To: StateOpen})
	m.startHeartbeatLocked()
	m.queue.Enqueue(func() { m.openEv.Emit(struct{}{}) })
	m.mu.Unlock()
	m.queue.Drain()

	slog.Info("connection: open", "conn_id", m.id, "url", m.url)
}

func (m *Manager) handleClose(gen uint64, ev transport.CloseEvent) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.tr = nil
	m.gen++
	m.queue.Enqueue(func() { m.closeEv.Emit(ev) })
	m.lostLocked(ev)
	m.mu.Unlock()
	m.queue.Drain()
}

// handleError forwards transport errors. Reconnection is driven only by the
// close that follows.
func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.queue.Enqueue(func() { m.errorEv.Emit(err) })
	m.mu.Unlock()
	m.queue.Drain()
}

func (m *Manager) handleMessage(gen uint64, msg transport.Message) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.queue.Enqueue(func() { m.msgEv.Emit(msg) })
	if msg.Type == transport.Text {
		text := string(msg.Data)
		m.queue.Enqueue(func() { m.textEv.Emit(text) })
		if json.Valid(msg.Data) {
			raw := json.RawMessage(text)
			m.queue.Enqueue(func() { m.jsonEv.Emit(raw) })
		}
	} else {
		data := msg.Data
		m.queue.Enqueue(func() { m.binaryEv.Emit(data) })
	}
	m.mu.Unlock()
	m.queue.Drain()
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	if m.heartbeat.Interval <= 0 {
		return
	}
	stop := make(chan struct{})
	m.hbStop = stop
	go m.heartbeatLoop(m.gen, m.heartbeat.Interval, stop)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

func (m *Manager) heartbeatLoop(gen uint64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.beat(gen)
		}
	}
}

// beat sends one heartbeat if the link is still open. Failures are logged
// and reported to the heartbeat error handler, never returned.
func (m *Manager) beat(gen uint64) {
	m.mu.Lock()
	tr := m.tr
	if gen != m.gen || m.state != StateOpen || tr == nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	msg, err := encode(m.heartbeat.payload())
	if err == nil {
		err = tr.Send(msg)
	}
	if err != nil {
		slog.Debug("connection: heartbeat failed", "conn_id", m.id, "err", err)
		if m.onHeartbeatErr != nil {
			m.onHeartbeatErr(err)
		}
	}
}

func encode(v any) (transport.Message, error) {
	if s, ok := v.(string); ok {
		return transport.Message{Type: transport.Text, Data: []byte(s)}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return transport.Message{}, fmt.Errorf("connection: encode json: %w", err)
	}
	return transport.Message{Type: transport.Text, Data: data}, nil
}

// ── Sending ──────────────────────────────────────────────────────────────────

// SendText sends a text frame. It fails with [ErrNotOpen] unless the manager
// is open; frames are never buffered.
func (m *Manager) SendText(s string) error {
	return m.send(transport.Message{Type: transport.Text, Data: []byte(s)})
}

// SendBinary sends a binary frame. It fails with [ErrNotOpen] unless the
// manager is open.
func (m *Manager) SendBinary(b []byte) error {
	return m.send(transport.Message{Type: transport.Binary, Data: b})
}

// SendJSON encodes v as JSON and sends it as a text frame. It fails with
// [ErrNotOpen] unless the manager is open.
func (m *Manager) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("connection: encode json: %w", err)
	}
	return m.send(transport.Message{Type: transport.Text, Data: data})
}

func (m *Manager) send(msg transport.Message) error {
	m.mu.Lock()
	state, tr := m.state, m.tr
	m.mu.Unlock()
	if state != StateOpen || tr == nil {
		return fmt.Errorf("connection: send: %w (state %s)", ErrNotOpen, state)
	}
	if err := tr.Send(msg); err != nil {
		return fmt.Errorf("connection: send: %w", err)
	}
	return nil
}

// ── Subscriptions ────────────────────────────────────────────────────────────

// OnState subscribes to state transitions.
func (m *Manager) OnState(fn func(StateChange)) (unsubscribe func()) { return m.stateEv.On(fn) }

// OnOpen subscribes to successful opens.
func (m *Manager) OnOpen(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return m.openEv.On(func(struct{}) { fn() })
}

// OnClose subscribes to transport closes, including manual disconnects.
func (m *Manager) OnClose(fn func(transport.CloseEvent)) (unsubscribe func()) {
	return m.closeEv.On(fn)
}

// OnError subscribes to transport and construction errors.
func (m *Manager) OnError(fn func(error)) (unsubscribe func()) { return m.errorEv.On(fn) }

// OnMessage subscribes to every inbound frame. It fires before the text, JSON
// and binary events for the same frame.
func (m *Manager) OnMessage(fn func(transport.Message)) (unsubscribe func()) {
	return m.msgEv.On(fn)
}

// OnText subscribes to inbound text frames.
func (m *Manager) OnText(fn func(string)) (unsubscribe func()) { return m.textEv.On(fn) }

// OnJSON subscribes to inbound text frames that contain valid JSON. Frames
// that fail to parse are skipped silently.
func (m *Manager) OnJSON(fn func(json.RawMessage)) (unsubscribe func()) { return m.jsonEv.On(fn) }

// OnBinary subscribes to inbound binary frames.
func (m *Manager) OnBinary(fn func([]byte)) (unsubscribe func()) { return m.binaryEv.On(fn) }
