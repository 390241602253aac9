package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/session"
)

// Start triggers recorded in [SessionInfo].
const (
	TriggerAutoStart = "auto_start"
	TriggerAPI       = "api"
)

// SessionInfo holds metadata about the current or most recent voice session.
type SessionInfo struct {
	SessionID string        `json:"session_id,omitempty"`
	Trigger   string        `json:"trigger,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	State     session.State `json:"-"`
	StateName string        `json:"state"`
}

// SessionManager starts and stops voice sessions on an orchestrator, wrapping
// every handshake in a trace span. All exported methods are safe for
// concurrent use.
type SessionManager struct {
	orch   *session.Orchestrator
	connID string
	opts   session.StartOptions
	now    func() time.Time

	mu   sync.Mutex
	info SessionInfo

	wg sync.WaitGroup
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Orchestrator *session.Orchestrator

	// ConnectionID tags handshake spans.
	ConnectionID string

	// StartOptions is used for every start. SessionID is overwritten.
	StartOptions session.StartOptions

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		orch:   cfg.Orchestrator,
		connID: cfg.ConnectionID,
		opts:   cfg.StartOptions,
		now:    now,
	}
}

// Start runs one handshake and blocks until it settles.
func (sm *SessionManager) Start(ctx context.Context, trigger string) error {
	id := uuid.NewString()
	ctx, span := observe.StartVoiceSessionSpan(ctx, sm.connID, id)

	opts := sm.opts
	opts.SessionID = id
	err := sm.orch.StartVoiceSession(ctx, opts)
	observe.EndSpan(span, err)

	log := observe.Logger(ctx).With("voice_session", id, "trigger", trigger)
	if err != nil {
		log.Warn("voice session failed to start", "err", err)
		return err
	}

	sm.mu.Lock()
	sm.info = SessionInfo{SessionID: id, Trigger: trigger, StartedAt: sm.now()}
	sm.mu.Unlock()
	log.Info("voice session started")
	return nil
}

// StartAsync runs [SessionManager.Start] in the background. Guard errors
// (a handshake already pending, already recording) are logged at debug.
func (sm *SessionManager) StartAsync(ctx context.Context, trigger string) {
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		err := sm.Start(ctx, trigger)
		if errors.Is(err, session.ErrHandshakeInProgress) || errors.Is(err, session.ErrAlreadyRecording) {
			slog.Debug("voice session start skipped", "trigger", trigger, "err", err)
		}
	}()
}

// Wait blocks until every [SessionManager.StartAsync] call has returned.
func (sm *SessionManager) Wait() { sm.wg.Wait() }

// Stop ends recording with the configured stop action.
func (sm *SessionManager) Stop() error { return sm.orch.StopVoiceSession() }

// End ends recording and asks the backend to close the session.
func (sm *SessionManager) End() error { return sm.orch.EndVoiceSession() }

// StopPlayback interrupts the assistant.
func (sm *SessionManager) StopPlayback() { sm.orch.StopPlayback() }

// IsActive reports whether a voice session is recording or playing.
func (sm *SessionManager) IsActive() bool {
	st := sm.orch.State()
	return st == session.StateRecording || st == session.StatePlaying
}

// Info returns the current session metadata.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	info := sm.info
	sm.mu.Unlock()
	info.State = sm.orch.State()
	info.StateName = info.State.String()
	return info
}

// ── HTTP control ─────────────────────────────────────────────────────────────

// Register adds the session control routes to mux.
func (sm *SessionManager) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /session", sm.handleInfo)
	mux.HandleFunc("POST /session/start", sm.handleStart)
	mux.HandleFunc("POST /session/stop", sm.handleStop)
	mux.HandleFunc("POST /session/end", sm.handleEnd)
	mux.HandleFunc("POST /playback/stop", sm.handleStopPlayback)
}

func (sm *SessionManager) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sm.Info())
}

func (sm *SessionManager) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := sm.Start(r.Context(), TriggerAPI); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sm.Info())
}

func (sm *SessionManager) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := sm.Stop(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sm.Info())
}

func (sm *SessionManager) handleEnd(w http.ResponseWriter, _ *http.Request) {
	if err := sm.End(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sm.Info())
}

func (sm *SessionManager) handleStopPlayback(w http.ResponseWriter, _ *http.Request) {
	sm.StopPlayback()
	writeJSON(w, http.StatusOK, sm.Info())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrHandshakeInProgress), errors.Is(err, session.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, session.ErrHandshakeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, session.ErrCaptureStart), errors.Is(err, session.ErrCapture), errors.Is(err, session.ErrPlayback):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("status server: encode response", "err", err)
	}
}
