package audio

import (
	"sync/atomic"

	"github.com/parlatech/parla/internal/scheduler"
)

// StreamAssembler turns the scheduler's ordered result stream into wire
// PCM16, one send per chunk, and closes the transport on the terminal
// marker. Failed and empty chunks are forwarded as nothing at all: the
// stream simply continues with the next chunk.
type StreamAssembler struct {
	send  func(pcm []byte) error
	close func() error

	bytesSent    atomic.Int64
	chunksSent   atomic.Int64
	chunksFailed atomic.Int64
}

// NewStreamAssembler builds an assembler over a transport send and close
// function. close is invoked exactly once, when the terminal marker arrives.
func NewStreamAssembler(send func(pcm []byte) error, closeFn func() error) *StreamAssembler {
	return &StreamAssembler{send: send, close: closeFn}
}

// Emit satisfies the scheduler's emission contract.
func (a *StreamAssembler) Emit(r scheduler.Result) error {
	if r.Final {
		if a.close == nil {
			return nil
		}
		return a.close()
	}
	if r.Err != nil {
		a.chunksFailed.Add(1)
		return nil
	}
	if len(r.Samples) == 0 {
		// A non-terminal empty chunk is a no-op, not an error.
		return nil
	}
	pcm := PCM16Bytes(r.Samples)
	if err := a.send(pcm); err != nil {
		return err
	}
	a.bytesSent.Add(int64(len(pcm)))
	a.chunksSent.Add(1)
	return nil
}

// BytesSent reports the total PCM bytes forwarded so far.
func (a *StreamAssembler) BytesSent() int64 { return a.bytesSent.Load() }

// ChunksSent reports how many chunks were forwarded.
func (a *StreamAssembler) ChunksSent() int64 { return a.chunksSent.Load() }

// ChunksFailed reports how many chunks were skipped due to inference errors.
func (a *StreamAssembler) ChunksFailed() int64 { return a.chunksFailed.Load() }

// BufferAssembler collects the ordered result stream into one contiguous
// sample buffer for non-streaming responses, which need the whole utterance
// before container encoding.
type BufferAssembler struct {
	samples      []float32
	done         bool
	chunksFailed int
}

// NewBufferAssembler returns an empty buffer assembler.
func NewBufferAssembler() *BufferAssembler {
	return &BufferAssembler{}
}

// Emit satisfies the scheduler's emission contract.
func (b *BufferAssembler) Emit(r scheduler.Result) error {
	if r.Final {
		b.done = true
		return nil
	}
	if r.Err != nil {
		b.chunksFailed++
		return nil
	}
	b.samples = append(b.samples, r.Samples...)
	return nil
}

// Samples returns the concatenated utterance. Valid once Done reports true.
func (b *BufferAssembler) Samples() []float32 { return b.samples }

// Done reports whether the terminal marker has arrived.
func (b *BufferAssembler) Done() bool { return b.done }

// ChunksFailed reports how many chunks were dropped from the utterance.
func (b *BufferAssembler) ChunksFailed() int { return b.chunksFailed }
