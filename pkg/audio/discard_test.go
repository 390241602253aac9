package audio_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

func TestSilentCapture_StartTwice(t *testing.T) {
	t.Parallel()
	var c audio.SilentCapture
	if err := c.Start(audio.CaptureConfig{}, audio.CaptureHandlers{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(audio.CaptureConfig{}, audio.CaptureHandlers{}); !errors.Is(err, audio.ErrCaptureRunning) {
		t.Errorf("second Start = %v, want ErrCaptureRunning", err)
	}
	_ = c.Stop()
	if err := c.Start(audio.CaptureConfig{}, audio.CaptureHandlers{}); err != nil {
		t.Errorf("Start after Stop: %v", err)
	}
}

func TestDiscardPlayback_EnqueueBeforeInit(t *testing.T) {
	t.Parallel()
	var p audio.DiscardPlayback
	if err := p.Enqueue(make([]byte, 4)); !errors.Is(err, audio.ErrNotInitialized) {
		t.Errorf("Enqueue = %v, want ErrNotInitialized", err)
	}
}

func TestDiscardPlayback_EndsAfterPlayTime(t *testing.T) {
	t.Parallel()
	var p audio.DiscardPlayback
	var ended atomic.Int32
	var amp atomic.Value
	p.OnEnded(func() { ended.Add(1) })
	p.OnAmplitude(func(a float64) { amp.Store(a) })

	if err := p.Init(1000); err != nil {
		t.Fatal(err)
	}
	// 20 samples at 1 kHz = 20ms, full-scale positive.
	pcm := make([]byte, 40)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i], pcm[i+1] = 0xff, 0x7f
	}
	if err := p.Enqueue(pcm); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if a, _ := amp.Load().(float64); a < 0.99 {
		t.Errorf("amplitude = %v, want ~1", a)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ended.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := ended.Load(); got != 1 {
		t.Fatalf("ended = %d, want 1", got)
	}

	// Stopping an idle playback does not signal again.
	p.Stop()
	if got := ended.Load(); got != 1 {
		t.Errorf("ended after idle Stop = %d, want 1", got)
	}
}

func TestDiscardPlayback_StopSignalsEnded(t *testing.T) {
	t.Parallel()
	var p audio.DiscardPlayback
	var ended atomic.Int32
	p.OnEnded(func() { ended.Add(1) })
	_ = p.Init(1000)
	_ = p.Enqueue(make([]byte, 20000)) // 10s

	p.Stop()
	if got := ended.Load(); got != 1 {
		t.Errorf("ended = %d, want 1", got)
	}
	_ = p.Close()
	if err := p.Enqueue(make([]byte, 2)); !errors.Is(err, audio.ErrNotInitialized) {
		t.Errorf("Enqueue after Close = %v", err)
	}
}
