// Package engine wraps the neural inference backend. The backend is opaque:
// tokens and style vectors in, audio samples out. A loaded instance is not
// safe for concurrent use, so the pool runs N separate instances, each behind
// its own handle lock, and assigns work round-robin.
package engine

import (
	"context"
	"fmt"
	"sync"
)

// Engine is the fixed inference contract. Tokens must already be framed with
// the pad marker at both ends. Errors are attributable to the single call
// and never poison the instance.
type Engine interface {
	Infer(ctx context.Context, tokens []int64, styles [][]float32, speed float32) ([]float32, error)
}

// Handle owns one engine instance. All calls through the handle are
// serialized; distinct handles run fully in parallel.
type Handle struct {
	mu    sync.Mutex
	eng   Engine
	label string
}

// Label returns the stable instance id used in diagnostics.
func (h *Handle) Label() string { return h.label }

// Infer runs one inference with exclusive access to the underlying instance.
func (h *Handle) Infer(ctx context.Context, tokens []int64, styles [][]float32, speed float32) ([]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eng.Infer(ctx, tokens, styles, speed)
}

// Pool holds a fixed set of engine handles. No dynamic resizing: the pool
// size is the scheduler's concurrency window.
type Pool struct {
	handles []*Handle
}

// NewPool creates count handles, building one engine instance per handle via
// the factory.
func NewPool(count int, factory func(i int) (Engine, error)) (*Pool, error) {
	if count < 1 {
		return nil, fmt.Errorf("engine pool requires at least one worker, got %d", count)
	}
	handles := make([]*Handle, 0, count)
	for i := 0; i < count; i++ {
		eng, err := factory(i)
		if err != nil {
			return nil, fmt.Errorf("create engine instance %d: %w", i, err)
		}
		handles = append(handles, &Handle{eng: eng, label: fmt.Sprintf("%02x", i)})
	}
	return &Pool{handles: handles}, nil
}

// Count returns the number of instances in the pool.
func (p *Pool) Count() int { return len(p.handles) }

// Instance maps a task index to its handle round-robin.
func (p *Pool) Instance(i int) *Handle {
	return p.handles[i%len(p.handles)]
}
