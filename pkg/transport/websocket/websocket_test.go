package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/transport"
	wstransport "github.com/MrWong99/parley/pkg/transport/websocket"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a websocket test server running handler for each
// accepted connection. The server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// recorder collects handler callbacks on buffered channels.
type recorder struct {
	opened   chan struct{}
	messages chan transport.Message
	errs     chan error
	closed   chan transport.CloseEvent
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		messages: make(chan transport.Message, 16),
		errs:     make(chan error, 4),
		closed:   make(chan transport.CloseEvent, 1),
	}
}

func (r *recorder) handlers() transport.Handlers {
	return transport.Handlers{
		OnOpen:    func() { r.opened <- struct{}{} },
		OnMessage: func(m transport.Message) { r.messages <- m },
		OnError:   func(err error) { r.errs <- err },
		OnClose:   func(ev transport.CloseEvent) { r.closed <- ev },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
	var zero T
	return zero
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestDial_InvalidURL(t *testing.T) {
	t.Parallel()
	d := wstransport.New()

	for _, raw := range []string{"ftp://example.com", "://bad", "ws://"} {
		if _, err := d.Dial(raw, transport.Handlers{}); err == nil {
			t.Errorf("Dial(%q): expected error", raw)
		}
	}
}

func TestDial_OpenSendReceive(t *testing.T) {
	t.Parallel()

	received := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- string(data)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"session_started"}`))
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4})
		<-conn.CloseRead(context.Background()).Done()
	})

	rec := newRecorder()
	tr, err := wstransport.New().Dial(wsURL(srv), rec.handlers())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "done")

	waitFor(t, rec.opened, "open")
	if tr.ReadyState() != transport.Open {
		t.Fatalf("ReadyState = %s, want open", tr.ReadyState())
	}

	if err := tr.Send(transport.Message{Type: transport.Text, Data: []byte(`{"action":"ping"}`)}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := waitFor(t, received, "server receive"); got != `{"action":"ping"}` {
		t.Errorf("server received %q", got)
	}

	text := waitFor(t, rec.messages, "text frame")
	if text.Type != transport.Text || string(text.Data) != `{"type":"session_started"}` {
		t.Errorf("first message = %s %q", text.Type, text.Data)
	}
	bin := waitFor(t, rec.messages, "binary frame")
	if bin.Type != transport.Binary || len(bin.Data) != 4 {
		t.Errorf("second message = %s %v", bin.Type, bin.Data)
	}
}

func TestDial_ServerCloseReportsCode(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.Close(websocket.StatusTryAgainLater, "overloaded")
	})

	rec := newRecorder()
	if _, err := wstransport.New().Dial(wsURL(srv), rec.handlers()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitFor(t, rec.opened, "open")

	ev := waitFor(t, rec.closed, "close")
	if ev.Code != transport.CloseTryAgainLater {
		t.Errorf("close code = %d, want %d", ev.Code, transport.CloseTryAgainLater)
	}
	if ev.Reason != "overloaded" {
		t.Errorf("close reason = %q, want overloaded", ev.Reason)
	}
}

func TestDial_UnreachableReportsErrorThenClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	rec := newRecorder()
	tr, err := wstransport.New(wstransport.WithDialTimeout(time.Second)).Dial(url, rec.handlers())
	if err != nil {
		t.Fatalf("Dial must not fail synchronously for network errors: %v", err)
	}

	waitFor(t, rec.errs, "error")
	ev := waitFor(t, rec.closed, "close")
	if ev.Code != transport.CloseAbnormal {
		t.Errorf("close code = %d, want %d", ev.Code, transport.CloseAbnormal)
	}
	if tr.ReadyState() != transport.Closed {
		t.Errorf("ReadyState = %s, want closed", tr.ReadyState())
	}
	select {
	case <-rec.opened:
		t.Error("OnOpen must not fire for a failed dial")
	default:
	}
}

func TestSend_BeforeOpenFails(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tr, err := wstransport.New().Dial(wsURL(srv), transport.Handlers{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "")

	err = tr.Send(transport.Message{Type: transport.Text, Data: []byte("x")})
	if !errors.Is(err, transport.ErrNotOpen) {
		t.Errorf("Send before open = %v, want ErrNotOpen", err)
	}
}

func TestClose_LocalCloseReportsRequestedCode(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	rec := newRecorder()
	tr, err := wstransport.New().Dial(wsURL(srv), rec.handlers())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitFor(t, rec.opened, "open")

	if err := tr.Close(transport.CloseGoingAway, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(transport.CloseGoingAway, "bye"); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ev := waitFor(t, rec.closed, "close")
	if ev.Code != transport.CloseGoingAway || !ev.WasClean {
		t.Errorf("close event = %+v, want clean 1001", ev)
	}
	if err := tr.Send(transport.Message{Type: transport.Text, Data: []byte("x")}); !errors.Is(err, transport.ErrNotOpen) {
		t.Errorf("Send after close = %v, want ErrNotOpen", err)
	}
}

func TestDial_SendsHeaders(t *testing.T) {
	t.Parallel()

	auth := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		<-conn.CloseRead(context.Background()).Done()
	})

	d := wstransport.New(wstransport.WithHTTPHeader(http.Header{"Authorization": {"Bearer token"}}))
	tr, err := d.Dial(wsURL(srv), transport.Handlers{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "")

	if got := waitFor(t, auth, "handshake"); got != "Bearer token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestDial_NegotiatesSubprotocol(t *testing.T) {
	t.Parallel()

	chosen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:       []string{"parley.v1"},
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		chosen <- conn.Subprotocol()
		<-conn.CloseRead(context.Background()).Done()
	}))
	t.Cleanup(srv.Close)

	d := wstransport.New(wstransport.WithSubprotocols("parley.v2", "parley.v1"))
	tr, err := d.Dial(wsURL(srv), transport.Handlers{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "")

	if got := waitFor(t, chosen, "handshake"); got != "parley.v1" {
		t.Errorf("negotiated subprotocol = %q, want parley.v1", got)
	}
}

// countingTransport counts handshake round trips.
type countingTransport struct {
	n    chan struct{}
	base http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.n <- struct{}{}
	return c.base.RoundTrip(r)
}

func TestDial_UsesHTTPClient(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})
	rt := &countingTransport{n: make(chan struct{}, 1), base: http.DefaultTransport}

	rec := newRecorder()
	d := wstransport.New(wstransport.WithHTTPClient(&http.Client{Transport: rt}))
	tr, err := d.Dial(wsURL(srv), rec.handlers())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close(transport.CloseNormal, "")

	waitFor(t, rt.n, "handshake through custom client")
	waitFor(t, rec.opened, "open")
}

func TestRead_OversizedMessageClosesAbnormally(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.Write(context.Background(), websocket.MessageBinary, make([]byte, 4096))
		<-conn.CloseRead(context.Background()).Done()
	})

	rec := newRecorder()
	d := wstransport.New(wstransport.WithReadLimit(1024))
	if _, err := d.Dial(wsURL(srv), rec.handlers()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitFor(t, rec.opened, "open")

	waitFor(t, rec.errs, "read error")
	ev := waitFor(t, rec.closed, "close")
	if ev.WasClean || ev.Code != transport.CloseAbnormal {
		t.Errorf("close = %+v, want abnormal", ev)
	}
	select {
	case m := <-rec.messages:
		t.Errorf("oversized message delivered (%d bytes)", len(m.Data))
	default:
	}
}
