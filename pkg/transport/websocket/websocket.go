// Package websocket implements [transport.Dialer] on top of
// github.com/coder/websocket.
//
// Dial returns immediately with a transport in the Connecting state and
// establishes the connection on a background goroutine. That goroutine then
// becomes the receive loop and is the only caller of the transport's
// handlers. Outbound frames go through a bounded queue drained by a separate
// writer goroutine so that Send never blocks on network I/O; when the queue
// is full Send fails with [transport.ErrBackpressure].
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/transport"
)

// Compile-time assertions.
var (
	_ transport.Dialer    = (*Dialer)(nil)
	_ transport.Transport = (*conn)(nil)
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultWriteQueue   = 256
	defaultReadLimit    = 4 << 20
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithHTTPHeader sets headers sent with the opening handshake (for example an
// Authorization header).
func WithHTTPHeader(h http.Header) Option {
	return func(d *Dialer) { d.header = h.Clone() }
}

// WithHTTPClient overrides the HTTP client used for the opening handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) { d.httpClient = c }
}

// WithDialTimeout bounds the opening handshake. Non-positive values are ignored.
func WithDialTimeout(t time.Duration) Option {
	return func(d *Dialer) {
		if t > 0 {
			d.dialTimeout = t
		}
	}
}

// WithWriteTimeout bounds each frame write. Non-positive values are ignored.
func WithWriteTimeout(t time.Duration) Option {
	return func(d *Dialer) {
		if t > 0 {
			d.writeTimeout = t
		}
	}
}

// WithWriteQueue sets the number of outbound frames that may be queued before
// Send reports backpressure. Non-positive values are ignored.
func WithWriteQueue(n int) Option {
	return func(d *Dialer) {
		if n > 0 {
			d.writeQueue = n
		}
	}
}

// WithReadLimit sets the maximum inbound frame size in bytes.
func WithReadLimit(n int64) Option {
	return func(d *Dialer) {
		if n > 0 {
			d.readLimit = n
		}
	}
}

// WithSubprotocols sets the subprotocols offered during the handshake.
func WithSubprotocols(protos ...string) Option {
	return func(d *Dialer) { d.subprotocols = protos }
}

// ── Dialer ─────────────────────────────────────────────────────────────────────

// Dialer constructs websocket transports. It is safe for concurrent use.
type Dialer struct {
	header       http.Header
	httpClient   *http.Client
	subprotocols []string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	writeQueue   int
	readLimit    int64
}

// New creates a Dialer with the given options.
func New(opts ...Option) *Dialer {
	d := &Dialer{
		dialTimeout:  defaultDialTimeout,
		writeTimeout: defaultWriteTimeout,
		writeQueue:   defaultWriteQueue,
		readLimit:    defaultReadLimit,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial validates rawURL and starts connecting in the background. Only URL
// problems are reported synchronously.
func (d *Dialer) Dial(rawURL string, h transport.Handlers) (transport.Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("websocket: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("websocket: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("websocket: url %q has no host", rawURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		dialer:   d,
		url:      u.String(),
		handlers: h,
		out:      make(chan transport.Message, d.writeQueue),
		ctx:      ctx,
		cancel:   cancel,
		state:    transport.Connecting,
	}
	go c.run()
	return c, nil
}

// ── conn ───────────────────────────────────────────────────────────────────────

type conn struct {
	dialer   *Dialer
	url      string
	handlers transport.Handlers
	out      chan transport.Message

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    transport.ReadyState
	ws       *websocket.Conn
	closeReq *transport.CloseEvent
}

// run dials, then becomes the receive loop. It is the only goroutine that
// invokes handlers.
func (c *conn) run() {
	dialCtx, dialCancel := context.WithTimeout(c.ctx, c.dialer.dialTimeout)
	ws, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient:   c.dialer.httpClient,
		HTTPHeader:   c.dialer.header,
		Subprotocols: c.dialer.subprotocols,
	})
	dialCancel()

	if err != nil {
		c.mu.Lock()
		c.state = transport.Closed
		req := c.closeReq
		c.mu.Unlock()
		c.cancel()

		if req != nil {
			// Closed by the caller before the handshake finished.
			c.fireClose(transport.CloseEvent{Code: req.Code, Reason: req.Reason})
			return
		}
		c.fireError(fmt.Errorf("websocket: dial %s: %w", c.url, err))
		c.fireClose(transport.CloseEvent{Code: transport.CloseAbnormal, Reason: err.Error()})
		return
	}
	ws.SetReadLimit(c.dialer.readLimit)

	c.mu.Lock()
	c.ws = ws
	if req := c.closeReq; req != nil {
		c.state = transport.Closed
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusCode(req.Code), req.Reason)
		c.cancel()
		c.fireClose(transport.CloseEvent{Code: req.Code, Reason: req.Reason, WasClean: true})
		return
	}
	c.state = transport.Open
	c.mu.Unlock()

	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	go c.writeLoop(ws)
	c.readLoop(ws)
}

func (c *conn) readLoop(ws *websocket.Conn) {
	for {
		typ, data, err := ws.Read(c.ctx)
		if err != nil {
			c.finish(err)
			return
		}
		if c.handlers.OnMessage == nil {
			continue
		}
		mt := transport.Text
		if typ == websocket.MessageBinary {
			mt = transport.Binary
		}
		c.handlers.OnMessage(transport.Message{Type: mt, Data: data})
	}
}

func (c *conn) writeLoop(ws *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.out:
			typ := websocket.MessageText
			if msg.Type == transport.Binary {
				typ = websocket.MessageBinary
			}
			wctx, cancel := context.WithTimeout(c.ctx, c.dialer.writeTimeout)
			err := ws.Write(wctx, typ, msg.Data)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					slog.Debug("websocket: write failed", "url", c.url, "err", err)
				}
				return
			}
		}
	}
}

// finish translates the read error into a close event.
func (c *conn) finish(err error) {
	c.mu.Lock()
	c.state = transport.Closed
	req := c.closeReq
	c.mu.Unlock()
	c.cancel()

	var ce websocket.CloseError
	switch {
	case req != nil:
		c.fireClose(transport.CloseEvent{Code: req.Code, Reason: req.Reason, WasClean: true})
	case errors.As(err, &ce):
		c.fireClose(transport.CloseEvent{Code: int(ce.Code), Reason: ce.Reason, WasClean: true})
	default:
		c.fireError(fmt.Errorf("websocket: read: %w", err))
		c.fireClose(transport.CloseEvent{Code: transport.CloseAbnormal, Reason: err.Error()})
	}
}

func (c *conn) fireError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *conn) fireClose(ev transport.CloseEvent) {
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(ev)
	}
}

// Send queues msg for the writer goroutine. The transport takes ownership of
// msg.Data.
func (c *conn) Send(msg transport.Message) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != transport.Open {
		return fmt.Errorf("%w (state %s)", transport.ErrNotOpen, state)
	}

	select {
	case c.out <- msg:
		return nil
	default:
		return transport.ErrBackpressure
	}
}

// Close starts the close handshake without waiting for it to finish.
func (c *conn) Close(code int, reason string) error {
	if code == 0 {
		code = transport.CloseNormal
	}

	c.mu.Lock()
	if c.state == transport.Closing || c.state == transport.Closed {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = transport.Closing
	c.closeReq = &transport.CloseEvent{Code: code, Reason: reason}
	ws := c.ws
	c.mu.Unlock()

	if prev == transport.Connecting || ws == nil {
		c.cancel()
		return nil
	}

	go func() {
		if err := ws.Close(websocket.StatusCode(code), reason); err != nil {
			slog.Debug("websocket: close handshake incomplete", "url", c.url, "err", err)
		}
		c.cancel()
	}()
	return nil
}

// ReadyState reports the current lifecycle state.
func (c *conn) ReadyState() transport.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
