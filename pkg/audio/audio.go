// Package audio defines the capture and playback collaborators consumed by the
// voice session, plus the PCM helpers shared by their implementations.
//
// The two primary abstractions are:
//
//   - [Capture]: a microphone pipeline that delivers fixed-size frames of
//     16-bit mono PCM at a target sample rate.
//   - [Playback]: a speaker sink that queues 16-bit mono PCM, reports its
//     loudness while playing, and signals when its queue runs dry.
//
// Device-backed implementations live in sub-packages (audio/miniaudio);
// audio/mock provides recording doubles for tests.
//
// All PCM in this package is little-endian signed 16-bit, mono.
package audio

import "errors"

// ErrNotInitialized is returned by playback operations invoked before Init.
var ErrNotInitialized = errors.New("audio: playback not initialized")

// ErrCaptureRunning is returned by Start on a capture that is already running.
var ErrCaptureRunning = errors.New("audio: capture already started")

// CaptureConfig describes the frames a [Capture] must deliver.
type CaptureConfig struct {
	// SourceSampleRate is the device rate in Hz. Zero lets the
	// implementation pick its native rate.
	SourceSampleRate int

	// FrameSize is the number of samples per delivered frame, at
	// TargetSampleRate.
	FrameSize int

	// TargetSampleRate is the rate of delivered frames in Hz.
	TargetSampleRate int
}

// CaptureHandlers receives output from a running [Capture].
//
// OnFrame runs on the platform's real-time audio thread and must not block.
// The slice is only valid for the duration of the call.
type CaptureHandlers struct {
	OnFrame func(pcm []byte)

	// OnError reports failures after Start returned successfully.
	OnError func(err error)
}

// Capture is a microphone pipeline.
type Capture interface {
	// Start begins delivering frames. It fails if the device cannot be
	// opened; calling Start on a running capture is an error.
	Start(cfg CaptureConfig, h CaptureHandlers) error

	// Stop halts delivery. Calling Stop on a stopped capture is a no-op.
	Stop() error
}

// Playback is a speaker sink for synthesized speech.
type Playback interface {
	// Init prepares the output device at sampleRate. Calling Init again with
	// a different rate re-opens the device.
	Init(sampleRate int) error

	// Enqueue appends pcm to the play queue without blocking.
	Enqueue(pcm []byte) error

	// Stop immediately discards everything queued. Stopping an idle
	// playback is a no-op and does not signal ended.
	Stop()

	// Close releases the device. The playback may be re-initialised later.
	Close() error

	// OnAmplitude subscribes to loudness samples in [0, 1] reported while
	// audio is playing.
	OnAmplitude(fn func(float64)) (unsubscribe func())

	// OnEnded subscribes to the "queue ran dry" signal. It fires once per
	// transition from playing to idle.
	OnEnded(fn func()) (unsubscribe func())
}

// Resetter is implemented by playbacks with decoder state that must be
// discarded when a new turn starts after an interruption.
type Resetter interface {
	Reset()
}
