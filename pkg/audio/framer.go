package audio

import (
	"fmt"
	"sync"
)

// Framer re-chunks a sample stream into frames of a fixed size.
type Framer struct {
	size int
	buf  []int16
}

// NewFramer creates a Framer emitting frames of size samples. A non-positive
// size disables re-chunking: every push is emitted as-is.
func NewFramer(size int) *Framer {
	return &Framer{size: size}
}

// Push appends samples and calls emit once per complete frame. The frame
// slice is only valid during the call.
func (f *Framer) Push(samples []int16, emit func([]int16)) {
	if f.size <= 0 {
		if len(samples) > 0 {
			emit(samples)
		}
		return
	}
	f.buf = append(f.buf, samples...)
	for len(f.buf) >= f.size {
		emit(f.buf[:f.size])
		f.buf = f.buf[f.size:]
	}
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
}

// Buffered returns the number of samples waiting for a complete frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Reset drops any partial frame.
func (f *Framer) Reset() { f.buf = nil }

// CapturePipeline turns raw device buffers into the frames described by a
// [CaptureConfig]: it resamples from the source rate to the target rate and
// re-chunks to FrameSize. It is safe for concurrent use, although device
// callbacks normally arrive from a single thread.
type CapturePipeline struct {
	mu      sync.Mutex
	rs      *Resampler
	framer  *Framer
	onFrame func(pcm []byte)
}

// NewCapturePipeline builds a pipeline for cfg. SourceSampleRate and
// TargetSampleRate must both be set.
func NewCapturePipeline(cfg CaptureConfig, onFrame func(pcm []byte)) (*CapturePipeline, error) {
	if onFrame == nil {
		return nil, fmt.Errorf("audio: capture pipeline needs a frame handler")
	}
	rs, err := NewResampler(cfg.SourceSampleRate, cfg.TargetSampleRate)
	if err != nil {
		return nil, err
	}
	return &CapturePipeline{
		rs:      rs,
		framer:  NewFramer(cfg.FrameSize),
		onFrame: onFrame,
	}, nil
}

// Write feeds one device buffer of source-rate PCM.
func (p *CapturePipeline) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples, err := p.rs.Process(BytesToSamples(pcm))
	if err != nil {
		return err
	}
	p.framer.Push(samples, func(frame []int16) {
		p.onFrame(SamplesToBytes(frame))
	})
	return nil
}

// Reset drops any partial frame.
func (p *CapturePipeline) Reset() {
	p.mu.Lock()
	p.framer.Reset()
	p.mu.Unlock()
}
