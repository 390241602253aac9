package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/parley/internal/app"
	audiomock "github.com/MrWong99/parley/pkg/audio/mock"
	"github.com/MrWong99/parley/pkg/connection"
	"github.com/MrWong99/parley/pkg/protocol"
	"github.com/MrWong99/parley/pkg/session"
	"github.com/MrWong99/parley/pkg/transport/mock"
)

func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

type smHarness struct {
	sm      *app.SessionManager
	orch    *session.Orchestrator
	tr      *mock.Transport
	capture *audiomock.Capture
}

func newSessionManager(t *testing.T, timeout time.Duration) *smHarness {
	t.Helper()
	d := &mock.Dialer{}
	conn := connection.New(connection.Config{URL: "ws://backend.test/voice", Dialer: d})
	conn.Connect()
	tr := d.Last()
	tr.Open()
	t.Cleanup(func() { conn.Disconnect(0, "") })

	capture := &audiomock.Capture{}
	orch := session.New(conn, capture, &audiomock.Playback{})
	t.Cleanup(orch.Detach)

	fixed := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Orchestrator: orch,
		ConnectionID: conn.ID(),
		StartOptions: session.StartOptions{Timeout: timeout},
		Now:          func() time.Time { return fixed },
	})
	return &smHarness{sm: sm, orch: orch, tr: tr, capture: capture}
}

func (h *smHarness) startSent() int {
	n := 0
	for _, s := range h.tr.SentText() {
		if s == `{"action":"start_session","input_type":"audio"}` {
			n++
		}
	}
	return n
}

func TestSessionManager_StartRecordsInfoAndSpan(t *testing.T) {
	exp := useTestTracer(t)
	h := newSessionManager(t, 2*time.Second)

	done := make(chan error, 1)
	go func() { done <- h.sm.Start(context.Background(), app.TriggerAPI) }()
	waitUntil(t, "start_session", func() bool { return h.startSent() == 1 })
	h.tr.ReceiveText(`{"type":"session_started"}`)

	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	info := h.sm.Info()
	if info.Trigger != app.TriggerAPI || info.State != session.StateRecording || info.StateName != "recording" {
		t.Errorf("info = %+v", info)
	}
	if !info.StartedAt.Equal(time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)) {
		t.Errorf("StartedAt = %v", info.StartedAt)
	}
	if info.SessionID != h.orch.VoiceSessionID() {
		t.Errorf("SessionID %q, orchestrator %q", info.SessionID, h.orch.VoiceSessionID())
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "voice_session.start" || spans[0].Status.Code != codes.Ok {
		t.Fatalf("spans = %+v", spans)
	}
	var found bool
	for _, a := range spans[0].Attributes {
		if a.Key == "parley.session.id" && a.Value.AsString() == info.SessionID {
			found = true
		}
	}
	if !found {
		t.Error("span missing session id attribute")
	}
}

func TestSessionManager_TimeoutMarksSpan(t *testing.T) {
	exp := useTestTracer(t)
	h := newSessionManager(t, 50*time.Millisecond)

	err := h.sm.Start(context.Background(), app.TriggerAPI)
	if !errors.Is(err, session.ErrHandshakeTimeout) {
		t.Fatalf("Start = %v, want ErrHandshakeTimeout", err)
	}
	if h.capture.Starts() != 0 {
		t.Error("capture started after timeout")
	}
	if info := h.sm.Info(); info.SessionID != "" || info.State != session.StateError {
		t.Errorf("info after failed start = %+v", info)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestSessionManager_StartAsyncAndWait(t *testing.T) {
	t.Parallel()
	h := newSessionManager(t, 2*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	h.sm.StartAsync(ctx, app.TriggerAutoStart)
	waitUntil(t, "start_session", func() bool { return h.startSent() == 1 })

	cancel()
	h.sm.Wait()
	if got := h.orch.State(); got != session.StateReady {
		t.Errorf("state after cancelled start = %s, want ready", got)
	}
	if h.startSent() != 1 {
		t.Errorf("start_session sent %d times, want 1", h.startSent())
	}
}

func TestSessionManager_StopEndAndInterrupt(t *testing.T) {
	t.Parallel()
	h := newSessionManager(t, 2*time.Second)

	done := make(chan error, 1)
	go func() { done <- h.sm.Start(context.Background(), app.TriggerAPI) }()
	waitUntil(t, "start_session", func() bool { return h.startSent() == 1 })
	h.tr.ReceiveText(`{"type":"session_started"}`)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !h.sm.IsActive() {
		t.Fatal("IsActive = false while recording")
	}

	h.sm.StopPlayback()
	if !h.orch.Latched() {
		t.Error("StopPlayback did not latch")
	}

	if err := h.sm.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.sm.IsActive() {
		t.Error("IsActive = true after Stop")
	}
	if err := h.sm.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	sent := h.tr.SentText()
	last2 := sent[len(sent)-2:]
	want := []string{
		fmt.Sprintf(`{"action":%q}`, protocol.ActionPauseSession),
		fmt.Sprintf(`{"action":%q}`, protocol.ActionEndSession),
	}
	if last2[0] != want[0] || last2[1] != want[1] {
		t.Errorf("last messages = %v, want %v", last2, want)
	}
}

func TestSessionManager_ConflictWhileHandshaking(t *testing.T) {
	t.Parallel()
	h := newSessionManager(t, 2*time.Second)

	go func() { _ = h.sm.Start(context.Background(), app.TriggerAPI) }()
	waitUntil(t, "start_session", func() bool { return h.startSent() == 1 })

	err := h.sm.Start(context.Background(), app.TriggerAPI)
	if !errors.Is(err, session.ErrHandshakeInProgress) {
		t.Fatalf("Start during handshake = %v", err)
	}

	mux := http.NewServeMux()
	h.sm.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/session/start", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("POST /session/start during handshake = %d, want 409", rec.Code)
	}
	h.tr.ReceiveText(`{"type":"session_started"}`)
}
