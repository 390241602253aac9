package motion_test

import (
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/parley/pkg/event"
	"github.com/MrWong99/parley/pkg/motion"
)

type fakeSource struct {
	amp   event.Emitter[float64]
	ended event.Emitter[struct{}]
}

func (s *fakeSource) OnAmplitude(fn func(float64)) func() { return s.amp.On(fn) }

func (s *fakeSource) OnPlaybackEnded(fn func()) func() {
	return s.ended.On(func(struct{}) { fn() })
}

type recordingSink struct {
	mu     sync.Mutex
	values []float64
}

func (r *recordingSink) SetMouthOpen(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recordingSink) got() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.values)
}

func ptr(v float64) *float64 { return &v }

func TestConfig_Map(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  motion.Config
		in   float64
		want float64
	}{
		{name: "gated below min", cfg: motion.DefaultConfig(), in: 0.003, want: 0},
		{name: "passes through", cfg: motion.DefaultConfig(), in: 0.5, want: 0.5},
		{name: "at min passes", cfg: motion.DefaultConfig(), in: 0.005, want: 0.005},
		{name: "scaled", cfg: motion.Config{MinAmplitude: 0.005, MaxAmplitude: 1, Scale: 2}, in: 0.25, want: 0.5},
		{name: "clamped to max", cfg: motion.Config{MinAmplitude: 0.005, MaxAmplitude: 0.8, Scale: 2}, in: 0.5, want: 0.8},
		{name: "negative input", cfg: motion.Config{MinAmplitude: 0, MaxAmplitude: 1, Scale: 1}, in: -0.2, want: 0},
		{name: "zero scale", cfg: motion.Config{MinAmplitude: 0, MaxAmplitude: 1, Scale: 0}, in: 0.7, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.Map(tt.in); got != tt.want {
				t.Errorf("Map(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := motion.DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := motion.Config{MinAmplitude: -1, MaxAmplitude: 0, Scale: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error")
	}
}

func TestMapper_ForwardsWithoutSmoothing(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	sink := &recordingSink{}
	m := motion.New(src, sink, motion.DefaultConfig())
	m.Start()

	for _, a := range []float64{0.5, 0.003, 0.9, 0.2} {
		src.amp.Emit(a)
	}
	if got, want := sink.got(), []float64{0.5, 0, 0.9, 0.2}; !slices.Equal(got, want) {
		t.Errorf("sink = %v, want %v", got, want)
	}
}

func TestMapper_EndedForcesZero(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	sink := &recordingSink{}
	m := motion.New(src, sink, motion.DefaultConfig())
	m.Start()

	src.amp.Emit(0.7)
	src.ended.Emit(struct{}{})
	if got, want := sink.got(), []float64{0.7, 0}; !slices.Equal(got, want) {
		t.Errorf("sink = %v, want %v", got, want)
	}
}

func TestMapper_StopEmitsOneZero(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	sink := &recordingSink{}
	m := motion.New(src, sink, motion.DefaultConfig())

	m.Stop()
	if n := len(sink.got()); n != 0 {
		t.Fatalf("Stop on a stopped mapper emitted %d values", n)
	}

	m.Start()
	m.Start()
	if n := src.amp.Len(); n != 1 {
		t.Errorf("amplitude subscribers = %d, want 1", n)
	}
	src.amp.Emit(0.4)
	m.Stop()
	m.Stop()

	if got, want := sink.got(), []float64{0.4, 0}; !slices.Equal(got, want) {
		t.Errorf("sink = %v, want %v", got, want)
	}
	if src.amp.Len() != 0 || src.ended.Len() != 0 {
		t.Error("subscriptions not released")
	}

	src.amp.Emit(0.9)
	if n := len(sink.got()); n != 2 {
		t.Errorf("sample after Stop reached the sink")
	}
}

func TestMapper_Toggle(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	sink := &recordingSink{}
	m := motion.New(src, sink, motion.DefaultConfig())

	if !m.Toggle() || !m.Running() {
		t.Fatal("first Toggle should start")
	}
	if m.Toggle() || m.Running() {
		t.Fatal("second Toggle should stop")
	}
	if got := sink.got(); !slices.Equal(got, []float64{0}) {
		t.Errorf("sink = %v, want [0]", got)
	}
}

func TestMapper_UpdateConfigWithoutRestart(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	sink := &recordingSink{}
	m := motion.New(src, sink, motion.DefaultConfig())
	m.Start()

	src.amp.Emit(0.05)
	cfg := m.UpdateConfig(motion.Patch{MinAmplitude: ptr(0.1), Scale: ptr(2)})
	if cfg.MaxAmplitude != 1 || cfg.MinAmplitude != 0.1 || cfg.Scale != 2 {
		t.Errorf("merged config = %+v", cfg)
	}
	src.amp.Emit(0.05)
	src.amp.Emit(0.3)

	if got, want := sink.got(), []float64{0.05, 0, 0.6}; !slices.Equal(got, want) {
		t.Errorf("sink = %v, want %v", got, want)
	}
	if m.Config() != cfg {
		t.Errorf("Config() = %+v, want %+v", m.Config(), cfg)
	}
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()

	var got float64
	motion.SinkFunc(func(v float64) { got = v }).SetMouthOpen(0.25)
	if got != 0.25 {
		t.Errorf("got %v", got)
	}
}
