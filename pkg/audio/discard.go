package audio

import (
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/event"
)

// Compile-time assertions.
var (
	_ Capture  = (*SilentCapture)(nil)
	_ Playback = (*DiscardPlayback)(nil)
)

// SilentCapture is a [Capture] without a device. It accepts Start and Stop
// but never delivers frames. It backs the "none" audio backend.
type SilentCapture struct {
	mu      sync.Mutex
	running bool
}

// Start marks the capture running.
func (c *SilentCapture) Start(CaptureConfig, CaptureHandlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrCaptureRunning
	}
	c.running = true
	return nil
}

// Stop marks the capture stopped.
func (c *SilentCapture) Stop() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

// DiscardPlayback is a [Playback] without a device. Enqueued audio is
// dropped, but its loudness is reported and ended fires once the audio
// would have finished playing in real time.
type DiscardPlayback struct {
	mu         sync.Mutex
	sampleRate int
	until      time.Time
	timer      *time.Timer

	amplitudeEv event.Emitter[float64]
	endedEv     event.Emitter[struct{}]
}

// Init records the sample rate used to time enqueued audio.
func (p *DiscardPlayback) Init(sampleRate int) error {
	p.mu.Lock()
	p.sampleRate = sampleRate
	p.mu.Unlock()
	return nil
}

// Enqueue reports the chunk's loudness and extends the simulated play time.
func (p *DiscardPlayback) Enqueue(pcm []byte) error {
	p.mu.Lock()
	if p.sampleRate <= 0 {
		p.mu.Unlock()
		return ErrNotInitialized
	}
	d := time.Duration(len(pcm)/2) * time.Second / time.Duration(p.sampleRate)
	now := time.Now()
	if p.until.Before(now) {
		p.until = now
	}
	p.until = p.until.Add(d)
	if p.timer == nil {
		p.timer = time.AfterFunc(p.until.Sub(now), p.expire)
	}
	p.mu.Unlock()

	p.amplitudeEv.Emit(RMS(pcm))
	return nil
}

func (p *DiscardPlayback) expire() {
	p.mu.Lock()
	if p.timer == nil {
		p.mu.Unlock()
		return
	}
	if rest := time.Until(p.until); rest > 0 {
		p.timer = time.AfterFunc(rest, p.expire)
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()
	p.endedEv.Emit(struct{}{})
}

// Stop drops the simulated queue and signals ended if audio was pending.
func (p *DiscardPlayback) Stop() {
	p.mu.Lock()
	t := p.timer
	p.timer = nil
	p.until = time.Time{}
	p.mu.Unlock()
	if t != nil {
		t.Stop()
		p.endedEv.Emit(struct{}{})
	}
}

// Close stops playback and forgets the sample rate.
func (p *DiscardPlayback) Close() error {
	p.Stop()
	p.mu.Lock()
	p.sampleRate = 0
	p.mu.Unlock()
	return nil
}

// OnAmplitude subscribes to per-chunk loudness.
func (p *DiscardPlayback) OnAmplitude(fn func(float64)) func() { return p.amplitudeEv.On(fn) }

// OnEnded subscribes to the simulated end of playback.
func (p *DiscardPlayback) OnEnded(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return p.endedEv.On(func(struct{}) { fn() })
}
