package audio

import (
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes mono float samples as 16-bit PCM WAV into the file.
func WriteWAV(f *os.File, samples []float32, sampleRate int) error {
	ints := PCM16(samples)
	buffer := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(ints)),
	}
	for i, v := range ints {
		buffer.Data[i] = int(v)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// EncodeWAV renders the samples to an in-memory WAV payload. The encoder
// needs a seekable target to back-patch chunk sizes, so a temp file is used
// and read back.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	f, err := os.CreateTemp("", "parla_wav_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := WriteWAV(f, samples, sampleRate); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Name())
}
