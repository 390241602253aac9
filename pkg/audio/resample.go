package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono int16 audio between sample rates. It keeps filter
// state across calls, so one Resampler must be used per stream. It is not
// safe for concurrent use.
type Resampler struct {
	inRate, outRate int
	r               resampling.Resampler
}

// NewResampler creates a Resampler from inRate to outRate. Equal rates yield a
// pass-through resampler.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", inRate, outRate)
	}
	rs := &Resampler{inRate: inRate, outRate: outRate}
	if inRate == outRate {
		return rs, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inRate),
		OutputRate: float64(outRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler %d -> %d: %w", inRate, outRate, err)
	}
	rs.r = r
	return rs, nil
}

// Passthrough reports whether the input and output rates are equal.
func (rs *Resampler) Passthrough() bool { return rs.r == nil }

// Process resamples one chunk. The output length may differ from the ideal
// ratio while the filter fills up.
func (rs *Resampler) Process(samples []int16) ([]int16, error) {
	if rs.r == nil || len(samples) == 0 {
		return samples, nil
	}
	out, err := rs.r.Process(SamplesToFloat(samples))
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	return FloatToSamples(out), nil
}
