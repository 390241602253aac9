// Package miniaudio implements [audio.Capture] and [audio.Playback] on top of
// the miniaudio library via github.com/gen2brain/malgo.
//
// A [Context] is the explicit handle for the native audio context. It is
// created once by the owner of the voice session and passed to [NewCapture]
// and [NewPlayback]; closing it after both are closed releases every native
// resource.
//
// Device callbacks run on miniaudio's real-time thread. They only copy bytes
// under a short lock and hand notifications to a dispatcher goroutine, so
// subscribers never run on the audio thread.
package miniaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/event"
)

// Compile-time assertions.
var (
	_ audio.Capture  = (*Capture)(nil)
	_ audio.Playback = (*Playback)(nil)
	_ audio.Resetter = (*Playback)(nil)
)

// DefaultSourceSampleRate is the capture device rate used when the caller
// does not request one.
const DefaultSourceSampleRate = 48000

const (
	bytesPerSample = 2
	notifyBuffer   = 64
)

// ── Context ──────────────────────────────────────────────────────────────────

// Context owns a miniaudio context.
type Context struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewContext initialises the native audio context with the default backend
// order.
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

func (c *Context) native() (malgo.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return malgo.Context{}, errors.New("miniaudio: context closed")
	}
	return c.ctx.Context, nil
}

// Close releases the native context. Devices created from it must be closed
// first. Calling Close more than once is safe.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	if err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	return nil
}

// ── Capture ──────────────────────────────────────────────────────────────────

// Capture records 16-bit mono PCM from the default input device.
type Capture struct {
	ctx *Context

	mu       sync.Mutex
	device   *malgo.Device
	pipeline *audio.CapturePipeline
}

// NewCapture creates a Capture bound to ctx. No device is opened until Start.
func NewCapture(ctx *Context) *Capture {
	return &Capture{ctx: ctx}
}

// Start opens the input device and begins delivering frames.
func (c *Capture) Start(cfg audio.CaptureConfig, h audio.CaptureHandlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return audio.ErrCaptureRunning
	}
	if cfg.SourceSampleRate <= 0 {
		cfg.SourceSampleRate = DefaultSourceSampleRate
	}

	pipeline, err := audio.NewCapturePipeline(cfg, h.OnFrame)
	if err != nil {
		return fmt.Errorf("miniaudio: capture: %w", err)
	}
	native, err := c.ctx.native()
	if err != nil {
		return err
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(cfg.SourceSampleRate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1
	devCfg.PerformanceProfile = malgo.LowLatency
	devCfg.PeriodSizeInMilliseconds = 20

	var reportOnce sync.Once
	device, err := malgo.InitDevice(native, devCfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			n := min(int(frameCount)*bytesPerSample, len(in))
			if n == 0 {
				return
			}
			if err := pipeline.Write(in[:n]); err != nil && h.OnError != nil {
				reportOnce.Do(func() { go h.OnError(err) })
			}
		},
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("miniaudio: start capture device: %w", err)
	}

	c.device = device
	c.pipeline = pipeline
	slog.Debug("miniaudio: capture started", "source_rate", cfg.SourceSampleRate, "target_rate", cfg.TargetSampleRate, "frame_size", cfg.FrameSize)
	return nil
}

// Stop closes the input device. Stopping a stopped capture is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}
	err := c.device.Stop()
	c.device.Uninit()
	c.device = nil
	c.pipeline = nil
	if err != nil {
		return fmt.Errorf("miniaudio: stop capture device: %w", err)
	}
	return nil
}

// ── Playback ─────────────────────────────────────────────────────────────────

// Playback plays 16-bit mono PCM on the default output device.
type Playback struct {
	ctx *Context

	mu      sync.Mutex
	device  *malgo.Device
	rate    int
	ready   bool
	queue   []byte
	carry   []byte
	playing bool
	stopped chan struct{}

	notify      chan func()
	amplitudeEv event.Emitter[float64]
	endedEv     event.Emitter[struct{}]
}

// NewPlayback creates a Playback bound to ctx. No device is opened until
// Init.
func NewPlayback(ctx *Context) *Playback {
	return &Playback{ctx: ctx, notify: make(chan func(), notifyBuffer)}
}

// Init opens the output device at sampleRate. Re-initialising at the same
// rate is a no-op; a different rate re-opens the device and drops the queue.
func (p *Playback) Init(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("miniaudio: invalid playback rate %d", sampleRate)
	}

	p.mu.Lock()
	if p.ready && p.rate == sampleRate {
		p.mu.Unlock()
		return nil
	}
	old := p.detachLocked()
	p.mu.Unlock()
	release(old)

	native, err := p.ctx.native()
	if err != nil {
		return err
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	devCfg.SampleRate = uint32(sampleRate)
	devCfg.Playback.Format = malgo.FormatS16
	devCfg.Playback.Channels = 1
	devCfg.Alsa.NoMMap = 1
	devCfg.PerformanceProfile = malgo.LowLatency
	devCfg.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(native, devCfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			n := min(int(frameCount)*bytesPerSample, len(out))
			p.fill(out[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init playback device: %w", err)
	}

	p.mu.Lock()
	p.device = device
	p.rate = sampleRate
	p.startDispatchLocked()
	p.mu.Unlock()

	if err := device.Start(); err != nil {
		_ = p.Close()
		return fmt.Errorf("miniaudio: start playback device: %w", err)
	}
	slog.Debug("miniaudio: playback initialised", "rate", sampleRate)
	return nil
}

// startDispatchLocked marks the playback ready and starts the goroutine that
// runs subscriber notifications off the audio thread.
func (p *Playback) startDispatchLocked() {
	p.ready = true
	stopped := make(chan struct{})
	p.stopped = stopped
	go func() {
		for {
			select {
			case <-stopped:
				return
			case fn := <-p.notify:
				fn()
			}
		}
	}()
}

// post hands fn to the dispatcher without blocking. Amplitude samples are
// dropped when the dispatcher falls behind.
func (p *Playback) post(fn func()) bool {
	select {
	case p.notify <- fn:
		return true
	default:
		return false
	}
}

// fill is the device data callback: it copies queued audio into out, pads
// with silence, and reports loudness and end of queue.
func (p *Playback) fill(out []byte) {
	p.mu.Lock()
	n := copy(out, p.queue)
	p.queue = p.queue[n:]
	clear(out[n:])
	ended := p.playing && len(p.queue) == 0
	if ended {
		p.playing = false
		p.queue = nil
	}
	p.mu.Unlock()

	if n > 0 {
		amp := audio.RMS(out[:n])
		p.post(func() { p.amplitudeEv.Emit(amp) })
	}
	if ended {
		if !p.post(func() { p.endedEv.Emit(struct{}{}) }) {
			go p.endedEv.Emit(struct{}{})
		}
	}
}

// Enqueue appends pcm to the play queue. Odd trailing bytes are carried over
// to the next call so that samples stay aligned.
func (p *Playback) Enqueue(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return audio.ErrNotInitialized
	}
	if len(p.carry) > 0 {
		pcm = append(p.carry, pcm...)
		p.carry = nil
	}
	if len(pcm)%bytesPerSample != 0 {
		p.carry = append(p.carry, pcm[len(pcm)-1])
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return nil
	}
	p.queue = append(p.queue, pcm...)
	p.playing = true
	return nil
}

// Stop discards everything queued. It signals ended if audio was playing.
func (p *Playback) Stop() {
	p.mu.Lock()
	wasPlaying := p.playing
	p.queue = nil
	p.carry = nil
	p.playing = false
	p.mu.Unlock()

	if wasPlaying {
		p.endedEv.Emit(struct{}{})
	}
}

// Reset drops any partially received sample so that the next turn starts
// aligned.
func (p *Playback) Reset() {
	p.mu.Lock()
	p.carry = nil
	p.mu.Unlock()
}

// Close releases the output device. The playback can be re-initialised.
func (p *Playback) Close() error {
	p.mu.Lock()
	old := p.detachLocked()
	p.mu.Unlock()
	release(old)
	return nil
}

// detachLocked resets the playback and returns the device for the caller to
// release after unlocking: stopping a device waits for its data callback,
// which takes p.mu.
func (p *Playback) detachLocked() *malgo.Device {
	device := p.device
	p.device = nil
	if p.stopped != nil {
		close(p.stopped)
		p.stopped = nil
	}
	p.ready = false
	p.queue = nil
	p.carry = nil
	p.playing = false
	p.rate = 0
	return device
}

func release(device *malgo.Device) {
	if device == nil {
		return
	}
	if err := device.Stop(); err != nil {
		slog.Debug("miniaudio: stop playback device", "err", err)
	}
	device.Uninit()
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
