// Package mock provides in-memory mock implementations of the [audio.Capture]
// and [audio.Playback] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values. Scripting helpers
// ([Capture.EmitFrame], [Playback.EmitAmplitude], [Playback.End], ...) invoke
// the registered callbacks synchronously on the calling goroutine.
//
// Typical usage:
//
//	capture := &mock.Capture{}
//	playback := &mock.Playback{}
//	orch := session.New(conn, capture, playback)
//	...
//	capture.EmitFrame(pcm)
package mock

import (
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/event"
)

// Compile-time assertions.
var (
	_ audio.Capture  = (*Capture)(nil)
	_ audio.Playback = (*Playback)(nil)
	_ audio.Playback = (*ResettablePlayback)(nil)
	_ audio.Resetter = (*ResettablePlayback)(nil)
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture].
// Set the exported error fields before use; inspect the CallCount fields after.
type Capture struct {
	mu sync.Mutex

	// StartErr is returned by [Capture.Start].
	StartErr error

	// StopErr is returned by [Capture.Stop].
	StopErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// LastConfig is the config passed to the most recent Start call.
	LastConfig audio.CaptureConfig

	running  bool
	handlers audio.CaptureHandlers
}

// Start implements [audio.Capture].
func (c *Capture) Start(cfg audio.CaptureConfig, h audio.CaptureHandlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	c.LastConfig = cfg
	if c.StartErr != nil {
		return c.StartErr
	}
	c.running = true
	c.handlers = h
	return nil
}

// Stop implements [audio.Capture].
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.running = false
	c.handlers = audio.CaptureHandlers{}
	return c.StopErr
}

// Running reports whether Start succeeded and Stop has not been called since.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Starts returns CallCountStart under the lock.
func (c *Capture) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountStart
}

// Stops returns CallCountStop under the lock.
func (c *Capture) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountStop
}

// EmitFrame delivers pcm to the frame handler if the capture is running.
func (c *Capture) EmitFrame(pcm []byte) {
	c.mu.Lock()
	fn := c.handlers.OnFrame
	c.mu.Unlock()
	if fn != nil {
		fn(pcm)
	}
}

// Fail delivers err to the error handler if the capture is running.
func (c *Capture) Fail(err error) {
	c.mu.Lock()
	fn := c.handlers.OnError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.Playback].
// Set the exported error fields before use; inspect the recorded calls after.
type Playback struct {
	mu sync.Mutex

	// InitErr is returned by [Playback.Init].
	InitErr error

	// EnqueueErr is returned by [Playback.Enqueue].
	EnqueueErr error

	// CloseErr is returned by [Playback.Close].
	CloseErr error

	// BeforeInit, if set, runs at the start of every Init call, outside the
	// mock's lock. A hook that blocks holds the call in flight.
	BeforeInit func()

	// BeforeEnqueue, if set, runs at the start of every Enqueue call, outside
	// the mock's lock.
	BeforeEnqueue func()

	// InitRates records the sample rate of every Init call.
	InitRates []int

	// Enqueued records every frame accepted by Enqueue.
	Enqueued [][]byte

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	playing     bool
	open        bool
	amplitudeEv event.Emitter[float64]
	endedEv     event.Emitter[struct{}]
}

// Init implements [audio.Playback].
func (p *Playback) Init(sampleRate int) error {
	if p.BeforeInit != nil {
		p.BeforeInit()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InitRates = append(p.InitRates, sampleRate)
	if p.InitErr != nil {
		return p.InitErr
	}
	p.open = true
	return nil
}

// Enqueue implements [audio.Playback]. Accepted frames mark the playback as
// playing.
func (p *Playback) Enqueue(pcm []byte) error {
	if p.BeforeEnqueue != nil {
		p.BeforeEnqueue()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnqueueErr != nil {
		return p.EnqueueErr
	}
	p.Enqueued = append(p.Enqueued, append([]byte(nil), pcm...))
	p.playing = true
	return nil
}

// Stop implements [audio.Playback]. It signals ended only if audio was
// playing.
func (p *Playback) Stop() {
	p.mu.Lock()
	p.CallCountStop++
	wasPlaying := p.playing
	p.playing = false
	p.mu.Unlock()
	if wasPlaying {
		p.endedEv.Emit(struct{}{})
	}
}

// Close implements [audio.Playback].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	p.playing = false
	p.open = false
	return p.CloseErr
}

// OnAmplitude implements [audio.Playback].
func (p *Playback) OnAmplitude(fn func(float64)) func() { return p.amplitudeEv.On(fn) }

// OnEnded implements [audio.Playback].
func (p *Playback) OnEnded(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return p.endedEv.On(func(struct{}) { fn() })
}

// EmitAmplitude delivers a loudness sample to subscribers.
func (p *Playback) EmitAmplitude(v float64) { p.amplitudeEv.Emit(v) }

// End simulates the queue running dry. It signals ended only if audio was
// playing.
func (p *Playback) End() {
	p.mu.Lock()
	wasPlaying := p.playing
	p.playing = false
	p.mu.Unlock()
	if wasPlaying {
		p.endedEv.Emit(struct{}{})
	}
}

// Frames returns a copy of the enqueued frames.
func (p *Playback) Frames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.Enqueued))
	copy(out, p.Enqueued)
	return out
}

// Inits returns a copy of InitRates.
func (p *Playback) Inits() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.InitRates...)
}

// IsOpen reports whether the last successful Init has not been followed by
// a Close.
func (p *Playback) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Playing reports whether enqueued audio has not yet been stopped or ended.
func (p *Playback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Stops returns CallCountStop under the lock.
func (p *Playback) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountStop
}

// Closes returns CallCountClose under the lock.
func (p *Playback) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountClose
}

// ─── ResettablePlayback ───────────────────────────────────────────────────────

// ResettablePlayback is a [Playback] that also implements [audio.Resetter].
type ResettablePlayback struct {
	Playback

	resets int
}

// Reset implements [audio.Resetter].
func (p *ResettablePlayback) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

// Resets returns how many times Reset was called.
func (p *ResettablePlayback) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}
