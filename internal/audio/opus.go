package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// opusFrameSamples is 20ms of mono audio at the model sample rate.
const opusFrameSamples = SampleRate / 50

const opusMaxFrameBytes = 4000

// EncodeOpus encodes mono float samples as a sequence of Opus frames, each
// prefixed with a uint16 little-endian byte length. There is no container;
// consumers reframe or remux as needed. The tail is zero-padded to a whole
// frame.
func EncodeOpus(samples []float32, sampleRate int) ([]byte, error) {
	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	pcm := PCM16(samples)
	var out []byte
	for start := 0; start < len(pcm); start += opusFrameSamples {
		end := start + opusFrameSamples
		frame := make([]int16, opusFrameSamples)
		if end > len(pcm) {
			copy(frame, pcm[start:])
		} else {
			copy(frame, pcm[start:end])
		}
		data, err := enc.Encode(frame, opusFrameSamples, opusMaxFrameBytes)
		if err != nil {
			return nil, fmt.Errorf("encode opus frame: %w", err)
		}
		var prefix [2]byte
		binary.LittleEndian.PutUint16(prefix[:], uint16(len(data)))
		out = append(out, prefix[:]...)
		out = append(out, data...)
	}
	return out, nil
}
