// Package app wires the parley subsystems into a running client.
//
// The App struct owns the full lifecycle: New builds the connection manager,
// the voice session orchestrator, the motion mapper and the status server;
// Run connects and blocks until the context is cancelled; Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithDialer,
// WithMotionSink, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/connection"
	"github.com/MrWong99/parley/pkg/event"
	"github.com/MrWong99/parley/pkg/motion"
	"github.com/MrWong99/parley/pkg/session"
	"github.com/MrWong99/parley/pkg/transport"
	"github.com/MrWong99/parley/pkg/transport/websocket"
)

// shutdownGrace bounds the status server's graceful shutdown inside Run.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	devices *config.AudioDevices

	dialer         transport.Dialer
	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	sink           motion.Sink

	conn     *connection.Manager
	orch     *session.Orchestrator
	mapper   *motion.Mapper
	sessions *SessionManager
	health   *health.Handler

	subs event.Subscriptions

	mu       sync.Mutex
	listener net.Addr
	ready    chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDialer replaces the websocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics on the status server.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets hot reload adjust the process log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMotionSink receives the mouth-open signal. The default logs it at
// debug level.
func WithMotionSink(s motion.Sink) Option {
	return func(a *App) { a.sink = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The audio devices
// come from main.go (built via the config registry). Nothing connects until
// Run.
func New(cfg *config.Config, devices *config.AudioDevices, opts ...Option) (*App, error) {
	if devices == nil || devices.Capture == nil || devices.Playback == nil {
		return nil, errors.New("app: audio devices are required")
	}
	a := &App{
		cfg:     cfg,
		devices: devices,
		ready:   make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.sink == nil {
		a.sink = motion.SinkFunc(func(v float64) { slog.Debug("motion: mouth open", "value", v) })
	}

	// ── 1. Connection ────────────────────────────────────────────────────
	a.initConnection()

	// ── 2. Voice session ─────────────────────────────────────────────────
	if err := a.initSession(); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 3. Motion ────────────────────────────────────────────────────────
	a.mapper = motion.New(a.orch, a.sink, cfg.Motion)

	// ── 4. Health ────────────────────────────────────────────────────────
	a.health = health.New(health.ConnectionChecker(a.conn))

	if devices.Close != nil {
		a.closers = append(a.closers, devices.Close)
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initConnection() {
	cc := a.cfg.Connection
	if a.dialer == nil {
		header := make(http.Header, len(cc.Headers))
		for k, v := range cc.Headers {
			header.Set(k, v)
		}
		a.dialer = websocket.New(
			websocket.WithHTTPHeader(header),
			websocket.WithDialTimeout(cc.DialTimeout),
			websocket.WithWriteTimeout(cc.WriteTimeout),
			websocket.WithWriteQueue(cc.WriteQueue),
		)
	}

	a.conn = connection.New(connection.Config{
		URL:    cc.URL,
		Dialer: a.dialer,
		Reconnect: connection.ReconnectPolicy{
			MinDelay:      cc.Reconnect.MinDelay,
			MaxDelay:      cc.Reconnect.MaxDelay,
			BackoffFactor: cc.Reconnect.BackoffFactor,
			JitterRatio:   cc.Reconnect.JitterRatio,
			MaxAttempts:   cc.Reconnect.MaxAttempts,
		},
		Heartbeat: connection.HeartbeatConfig{Interval: cc.Heartbeat.Interval},
	}, connection.WithHeartbeatErrorHandler(func(err error) {
		a.metrics.HeartbeatFailures.Add(context.Background(), 1)
		slog.Debug("heartbeat failed", "err", err)
	}))

	a.subs.Add(
		a.conn.OnState(func(sc connection.StateChange) {
			a.metrics.RecordConnectionState(context.Background(), sc)
			switch sc.To {
			case connection.StateReconnecting:
				slog.Warn("connection lost, reconnecting", "attempt", sc.Attempt, "delay", sc.Delay)
			case connection.StateClosed:
				if a.conn.Exhausted() {
					slog.Error("connection closed, reconnect attempts exhausted", "attempts", a.conn.Attempts())
				}
			default:
				slog.Info("connection state", "from", sc.From, "to", sc.To)
			}
		}),
		a.conn.OnError(func(err error) {
			slog.Warn("connection error", "err", err)
		}),
	)
}

func (a *App) initSession() error {
	sc := a.cfg.Session
	stopAction, err := session.ParseStopAction(sc.StopAction)
	if err != nil {
		return err
	}

	a.orch = session.New(a.conn, a.devices.Capture, a.devices.Playback,
		session.WithSourceSampleRate(sc.SourceSampleRate),
		session.WithFrameSize(sc.FrameSize),
		session.WithPlaybackSampleRate(sc.PlaybackSampleRate),
		session.WithAudioFormat(sc.AudioFormat),
		session.WithCaptureMuteWindow(sc.CaptureMuteWindow),
		session.WithAmplitudeMuteWindow(sc.AmplitudeMuteWindow),
		session.WithStopAction(stopAction),
		session.WithObserver(a.metrics.SessionObserver()),
	)
	a.subs.Add(
		a.orch.OnState(func(sc session.StateChange) {
			a.metrics.RecordSessionState(context.Background(), sc)
			slog.Debug("session state", "from", sc.From, "to", sc.To)
		}),
		a.orch.OnError(func(err error) {
			slog.Warn("voice session error", "err", err)
		}),
	)

	a.sessions = NewSessionManager(SessionManagerConfig{
		Orchestrator: a.orch,
		ConnectionID: a.conn.ID(),
		StartOptions: session.StartOptions{
			Timeout:          sc.HandshakeTimeout,
			TargetSampleRate: sc.TargetSampleRate,
		},
	})
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Connection returns the connection manager.
func (a *App) Connection() *connection.Manager { return a.conn }

// Orchestrator returns the voice session orchestrator.
func (a *App) Orchestrator() *session.Orchestrator { return a.orch }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Mapper returns the motion mapper.
func (a *App) Mapper() *motion.Mapper { return a.mapper }

// StatusAddr returns the status server's bound address once Run has started
// listening, or nil.
func (a *App) StatusAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener
}

// Handler returns the status server's routes wrapped in the observability
// middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	a.sessions.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run attaches the session, connects, and blocks until ctx is cancelled.
// With session.auto_start every open of the connection starts a voice
// session. Run returns ctx.Err() after a clean stop, or the status server's
// error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.orch.Attach()
	a.mapper.Start()

	if a.cfg.Session.AutoStart {
		a.subs.Add(a.conn.OnOpen(func() {
			a.sessions.StartAsync(gctx, TriggerAutoStart)
		}))
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: status server listen %q: %w", addr, err)
		}
		a.mu.Lock()
		a.listener = ln.Addr()
		a.mu.Unlock()

		srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("status server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	a.conn.Connect()
	close(a.ready)
	slog.Info("parley running", "connection", a.conn.ID(), "auto_start", a.cfg.Session.AutoStart)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.sessions.Wait()
	return ctx.Err()
}

// Ready is closed once Run has connected and started the status server.
func (a *App) Ready() <-chan struct{} { return a.ready }

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change and logs
// what needs a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MotionChanged {
		a.mapper.UpdateConfig(d.MotionPatch)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: motion, session, connection,
// then the audio backend. It respects the context deadline: if ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.mapper.Stop()
		if a.sessions.IsActive() {
			if err := a.sessions.Stop(); err != nil {
				slog.Warn("stop voice session", "err", err)
			}
		}
		a.orch.Detach()
		a.conn.Disconnect(1000, "client shutdown")
		a.subs.Release()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
