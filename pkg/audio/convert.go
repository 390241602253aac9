package audio

import (
	"encoding/binary"
	"math"
)

// BytesToSamples decodes little-endian int16 PCM. A trailing odd byte is
// ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// SamplesToBytes encodes samples as little-endian int16 PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// SamplesToFloat converts int16 samples to floats in [-1, 1).
func SamplesToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// FloatToSamples converts floats to int16 samples, clamping values outside
// [-1, 1].
func FloatToSamples(f []float64) []int16 {
	out := make([]int16, len(f))
	for i, v := range f {
		switch {
		case v >= 1:
			out[i] = math.MaxInt16
		case v <= -1:
			out[i] = math.MinInt16
		default:
			out[i] = int16(math.Round(v * 32767.0))
		}
	}
	return out
}

// RMS returns the root-mean-square loudness of pcm normalised to [0, 1].
// Empty input yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Min(1, math.Sqrt(sum/float64(n)))
}
