// Package mock provides scriptable in-memory implementations of
// [transport.Dialer] and [transport.Transport] for use in unit tests.
//
// A [Dialer] records every Dial call and hands out [Transport] values that do
// nothing on their own: the test drives their lifecycle by calling
// [Transport.Open], [Transport.Receive], [Transport.Fail] and
// [Transport.CloseWith], which invoke the registered handlers synchronously on
// the calling goroutine. That mirrors the single-goroutine delivery contract of
// real transports as long as the test drives each transport from one goroutine.
//
// Typical usage:
//
//	d := &mock.Dialer{}
//	mgr := connection.New(connection.Config{URL: "ws://x", Dialer: d})
//	mgr.Connect()
//	tr := d.Last()
//	tr.Open()
//	tr.ReceiveText(`{"type":"session_started"}`)
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/parley/pkg/transport"
)

// Compile-time assertions.
var (
	_ transport.Dialer    = (*Dialer)(nil)
	_ transport.Transport = (*Transport)(nil)
)

// ─── Dialer ───────────────────────────────────────────────────────────────────

// Dialer is a mock implementation of [transport.Dialer].
type Dialer struct {
	mu sync.Mutex

	// DialErr, when non-nil, is returned by every Dial call and no transport
	// is constructed.
	DialErr error

	// OnDial, when set, is called with every constructed transport before Dial
	// returns. It must not call back into the handlers synchronously.
	OnDial func(*Transport)

	// SendErr is copied into every constructed transport's SendErr field.
	SendErr error

	// CallCountDial records how many times Dial was called, including failed
	// calls.
	CallCountDial int

	// URLs records the url argument of every Dial call.
	URLs []string

	transports []*Transport
}

// Dial implements [transport.Dialer].
func (d *Dialer) Dial(url string, h transport.Handlers) (transport.Transport, error) {
	d.mu.Lock()
	d.CallCountDial++
	d.URLs = append(d.URLs, url)
	if d.DialErr != nil {
		err := d.DialErr
		d.mu.Unlock()
		return nil, err
	}
	t := &Transport{URL: url, handlers: h, state: transport.Connecting, SendErr: d.SendErr}
	d.transports = append(d.transports, t)
	hook := d.OnDial
	d.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return t, nil
}

// SetDialErr changes DialErr under the mock's lock.
func (d *Dialer) SetDialErr(err error) {
	d.mu.Lock()
	d.DialErr = err
	d.mu.Unlock()
}

// Dials returns the number of Dial calls so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountDial
}

// Transports returns every transport constructed so far, oldest first.
func (d *Dialer) Transports() []*Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Transport, len(d.transports))
	copy(out, d.transports)
	return out
}

// Last returns the most recently constructed transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// Live returns the number of constructed transports that are not closed.
func (d *Dialer) Live() int {
	d.mu.Lock()
	ts := make([]*Transport, len(d.transports))
	copy(ts, d.transports)
	d.mu.Unlock()

	n := 0
	for _, t := range ts {
		if s := t.ReadyState(); s != transport.Closed {
			n++
		}
	}
	return n
}

// ─── Transport ────────────────────────────────────────────────────────────────

// Transport is a mock implementation of [transport.Transport].
// Set SendErr before use to make Send fail; inspect Sent and CloseCalls after.
type Transport struct {
	// URL is the address the transport was dialled with.
	URL string

	mu       sync.Mutex
	handlers transport.Handlers
	state    transport.ReadyState

	// SendErr, when non-nil, is returned by Send while the transport is open.
	SendErr error

	// Sent records every frame accepted by Send.
	Sent []transport.Message

	// CloseCalls records the arguments of every Close call.
	CloseCalls []transport.CloseEvent
}

// Send implements [transport.Transport].
func (t *Transport) Send(msg transport.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != transport.Open {
		return fmt.Errorf("%w (state %s)", transport.ErrNotOpen, t.state)
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)
	t.Sent = append(t.Sent, transport.Message{Type: msg.Type, Data: data})
	return nil
}

// Close implements [transport.Transport]. It records the call and marks the
// transport closed without firing OnClose; use [Transport.CloseWith] to
// simulate the close event.
func (t *Transport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCalls = append(t.CloseCalls, transport.CloseEvent{Code: code, Reason: reason})
	t.state = transport.Closed
	return nil
}

// ReadyState implements [transport.Transport].
func (t *Transport) ReadyState() transport.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SentMessages returns a copy of every frame accepted by Send.
func (t *Transport) SentMessages() []transport.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.Message, len(t.Sent))
	copy(out, t.Sent)
	return out
}

// SentText returns the payloads of the accepted text frames.
func (t *Transport) SentText() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, m := range t.Sent {
		if m.Type == transport.Text {
			out = append(out, string(m.Data))
		}
	}
	return out
}

// CloseCallCount returns how many times Close was called.
func (t *Transport) CloseCallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.CloseCalls)
}

// ─── Scripting ────────────────────────────────────────────────────────────────

// Open moves the transport to Open and fires OnOpen.
func (t *Transport) Open() {
	t.mu.Lock()
	t.state = transport.Open
	h := t.handlers.OnOpen
	t.mu.Unlock()
	if h != nil {
		h()
	}
}

// Receive fires OnMessage with msg.
func (t *Transport) Receive(msg transport.Message) {
	t.mu.Lock()
	h := t.handlers.OnMessage
	t.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// ReceiveText fires OnMessage with a text frame.
func (t *Transport) ReceiveText(s string) {
	t.Receive(transport.Message{Type: transport.Text, Data: []byte(s)})
}

// ReceiveBinary fires OnMessage with a binary frame.
func (t *Transport) ReceiveBinary(b []byte) {
	t.Receive(transport.Message{Type: transport.Binary, Data: b})
}

// Error fires OnError without closing the transport.
func (t *Transport) Error(err error) {
	t.mu.Lock()
	h := t.handlers.OnError
	t.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Fail fires OnError followed by an abnormal OnClose, the way a dropped
// connection is reported.
func (t *Transport) Fail(err error) {
	t.Error(err)
	t.CloseWith(transport.CloseEvent{Code: transport.CloseAbnormal, Reason: err.Error()})
}

// CloseWith marks the transport closed and fires OnClose with ev.
func (t *Transport) CloseWith(ev transport.CloseEvent) {
	t.mu.Lock()
	t.state = transport.Closed
	h := t.handlers.OnClose
	t.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
