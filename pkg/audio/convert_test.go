package audio_test

import (
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
)

func TestSamplesBytesRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 12345, -32768, 32767}
	b := audio.SamplesToBytes(samples)
	if len(b) != 12 {
		t.Fatalf("len = %d, want 12", len(b))
	}
	if b[2] != 0x01 || b[3] != 0x00 {
		t.Errorf("sample 1 not little-endian: % x", b[2:4])
	}
	if got := audio.BytesToSamples(b); !slices.Equal(got, samples) {
		t.Errorf("round trip = %v, want %v", got, samples)
	}
}

func TestBytesToSamples_OddLengthIgnoresTrailingByte(t *testing.T) {
	t.Parallel()

	got := audio.BytesToSamples([]byte{0x10, 0x00, 0xff})
	if !slices.Equal(got, []int16{16}) {
		t.Errorf("got %v, want [16]", got)
	}
}

func TestFloatToSamples_Clamps(t *testing.T) {
	t.Parallel()

	got := audio.FloatToSamples([]float64{-2, -1, 0, 0.5, 1, 3})
	want := []int16{-32768, -32768, 0, 16384, 32767, 32767}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"half scale square", []int16{16384, -16384, 16384, -16384}, 0.5},
		{"full scale negative", []int16{-32768, -32768}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.RMS(audio.SamplesToBytes(tt.samples))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}
