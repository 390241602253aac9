// Package motion maps playback loudness to a mouth-open animation signal.
//
// A [Mapper] subscribes to a [Source] (typically a *session.Orchestrator),
// gates quiet samples, scales and clamps the rest, and forwards each value to
// a [Sink] immediately. There is no temporal smoothing: smoothed output lags
// behind syllable boundaries.
package motion

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/parley/pkg/event"
)

// Config holds the mapping parameters.
type Config struct {
	// MinAmplitude gates samples: anything below it maps to 0.
	MinAmplitude float64 `yaml:"min_amplitude"`

	// MaxAmplitude is the upper bound of the output.
	MaxAmplitude float64 `yaml:"max_amplitude"`

	// Scale multiplies samples that pass the gate.
	Scale float64 `yaml:"scale"`
}

// DefaultConfig returns {MinAmplitude: 0.005, MaxAmplitude: 1, Scale: 1}.
func DefaultConfig() Config {
	return Config{MinAmplitude: 0.005, MaxAmplitude: 1, Scale: 1}
}

// Validate reports parameters that cannot produce a meaningful signal.
func (c Config) Validate() error {
	var errs []error
	if c.MinAmplitude < 0 {
		errs = append(errs, errors.New("motion: min_amplitude must be >= 0"))
	}
	if c.MaxAmplitude <= 0 {
		errs = append(errs, errors.New("motion: max_amplitude must be > 0"))
	}
	if c.Scale < 0 {
		errs = append(errs, errors.New("motion: scale must be >= 0"))
	}
	return errors.Join(errs...)
}

// Map applies the gate, scale and clamp to one sample. The result is always
// in [0, MaxAmplitude].
func (c Config) Map(a float64) float64 {
	if a < c.MinAmplitude || a <= 0 {
		return 0
	}
	v := a * c.Scale
	return max(0, min(v, c.MaxAmplitude))
}

// Patch is a partial Config update. Nil fields keep their current value.
type Patch struct {
	MinAmplitude *float64
	MaxAmplitude *float64
	Scale        *float64
}

// Apply returns c with the non-nil fields of p.
func (p Patch) Apply(c Config) Config {
	if p.MinAmplitude != nil {
		c.MinAmplitude = *p.MinAmplitude
	}
	if p.MaxAmplitude != nil {
		c.MaxAmplitude = *p.MaxAmplitude
	}
	if p.Scale != nil {
		c.Scale = *p.Scale
	}
	return c
}

// Sink receives the animation signal.
type Sink interface {
	SetMouthOpen(v float64)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(v float64)

// SetMouthOpen implements [Sink].
func (f SinkFunc) SetMouthOpen(v float64) { f(v) }

// Source provides playback loudness and the end-of-playback signal.
type Source interface {
	OnAmplitude(fn func(float64)) (unsubscribe func())
	OnPlaybackEnded(fn func()) (unsubscribe func())
}

// Mapper drives a Sink from a Source.
type Mapper struct {
	src  Source
	sink Sink
	cfg  atomic.Pointer[Config]

	running atomic.Bool
	mu      sync.Mutex // serialises Start and Stop
	sinkMu  sync.Mutex // serialises sink calls so Stop's zero is the last value
	subs    event.Subscriptions
}

// New creates a stopped Mapper.
func New(src Source, sink Sink, cfg Config) *Mapper {
	m := &Mapper{src: src, sink: sink}
	m.cfg.Store(&cfg)
	return m
}

// Config returns the current parameters.
func (m *Mapper) Config() Config { return *m.cfg.Load() }

// UpdateConfig merges p into the current parameters. It takes effect from the
// next sample without a restart.
func (m *Mapper) UpdateConfig(p Patch) Config {
	for {
		old := m.cfg.Load()
		next := p.Apply(*old)
		if m.cfg.CompareAndSwap(old, &next) {
			slog.Debug("motion: config updated", "min", next.MinAmplitude, "max", next.MaxAmplitude, "scale", next.Scale)
			return next
		}
	}
}

// Map applies the current parameters to a.
func (m *Mapper) Map(a float64) float64 { return m.cfg.Load().Map(a) }

// Running reports whether the mapper is subscribed to its source.
func (m *Mapper) Running() bool { return m.running.Load() }

// Start subscribes to the source. Starting a running mapper is a no-op.
func (m *Mapper) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.subs.Add(
		m.src.OnAmplitude(m.handleAmplitude),
		m.src.OnPlaybackEnded(m.handleEnded),
	)
}

// Stop unsubscribes and sends exactly one 0 to the sink, leaving the mouth
// closed. Stopping a stopped mapper is a no-op.
func (m *Mapper) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.subs.Release()

	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	m.sink.SetMouthOpen(0)
}

// Toggle starts a stopped mapper or stops a running one and reports whether
// it is now running.
func (m *Mapper) Toggle() bool {
	if m.Running() {
		m.Stop()
		return false
	}
	m.Start()
	return true
}

func (m *Mapper) handleAmplitude(a float64) {
	v := m.Map(a)
	m.forward(v)
}

func (m *Mapper) handleEnded() { m.forward(0) }

func (m *Mapper) forward(v float64) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	if m.running.Load() {
		m.sink.SetMouthOpen(v)
	}
}
