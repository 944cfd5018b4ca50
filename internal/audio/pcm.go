// Package audio converts raw model output into wire and container formats.
// The model emits mono float32 samples; the wire format is 16-bit
// little-endian PCM.
package audio

import "encoding/binary"

// SampleRate is fixed by the model.
const SampleRate = 24000

// PCM16 converts float samples to 16-bit values with saturation.
func PCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32767.0
		switch {
		case v > 32767.0:
			v = 32767.0
		case v < -32768.0:
			v = -32768.0
		}
		out[i] = int16(v)
	}
	return out
}

// PCM16Bytes converts float samples to the little-endian PCM byte stream
// sent on the wire.
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767.0
		switch {
		case v > 32767.0:
			v = 32767.0
		case v < -32768.0:
			v = -32768.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
