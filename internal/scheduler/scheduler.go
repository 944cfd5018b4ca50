// Package scheduler runs chunk inference with up to pool-size parallelism
// while emitting results strictly in original chunk order. Workers may start
// and finish in any order; the coordinator holds completed results until
// their turn comes. A failed chunk is emitted as a failure and skipped
// downstream; it never aborts the request.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/parlatech/parla/internal/engine"
)

// Task is one unit of inference work handed to a worker.
type Task struct {
	ID   int
	Text string

	// First is set on a request's first chunk so leading silence is only
	// applied once.
	First bool
}

// Result is an ordered emission. Exactly one of three shapes: a successful
// chunk (Samples set), a failed chunk (Err set), or the terminal marker
// (Final set, ID equal to the total chunk count, empty payload). The marker
// is distinguishable from any real chunk because real chunks are non-empty
// by construction.
type Result struct {
	ID       int
	Samples  []float32
	Err      error
	Final    bool
	Instance string
}

// RunFunc performs the inference for one task on the given handle. It is
// called off the coordinator goroutine.
type RunFunc func(ctx context.Context, h *engine.Handle, task Task) ([]float32, error)

// EmitFunc receives results in strict ID order. Returning an error halts
// dispatch early (transport gone); remaining chunks are discarded, not
// treated as failures.
type EmitFunc func(Result) error

// Scheduler coordinates one request at a time; it holds no per-request state
// between calls and is safe for concurrent Run invocations.
type Scheduler struct {
	pool         *engine.Pool
	chunkTimeout time.Duration
	logger       *slog.Logger
}

// New creates a scheduler over the pool. chunkTimeout bounds a single chunk's
// inference; zero disables the bound.
func New(pool *engine.Pool, chunkTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pool:         pool,
		chunkTimeout: chunkTimeout,
		logger:       logger.With(slog.String("component", "scheduler")),
	}
}

type workerResult struct {
	id       int
	samples  []float32
	err      error
	instance string
}

// Run schedules every chunk, emits results in chunk order, and finishes with
// the terminal marker. The returned error is non-nil only for cancellation
// or a failed emit; per-chunk inference errors are reported through emit and
// otherwise swallowed.
func (s *Scheduler) Run(ctx context.Context, chunks []string, run RunFunc, emit EmitFunc) error {
	total := len(chunks)
	window := s.pool.Count()

	// Buffered to the window so a worker finishing after cancellation never
	// blocks on send.
	results := make(chan workerResult, window)
	inflight := make(map[int]struct{}, window)
	pending := make(map[int]workerResult)

	next := 0
	dispatched := 0
	emitted := 0

	for emitted < total {
		for len(inflight) < window && dispatched < total {
			id := dispatched
			handle := s.pool.Instance(id)
			inflight[id] = struct{}{}
			dispatched++
			go s.work(ctx, handle, Task{ID: id, Text: chunks[id], First: id == 0}, run, results)
		}

		if r, ok := pending[next]; ok {
			delete(pending, next)
			if err := s.emitOne(r, emit); err != nil {
				return err
			}
			next++
			emitted++
			continue
		}

		select {
		case r := <-results:
			delete(inflight, r.id)
			pending[r.id] = r
		case <-ctx.Done():
			// In-flight workers are left to finish; their results land in
			// the buffered channel and are discarded.
			return ctx.Err()
		}
	}

	// Steady state leaves nothing behind; anything found here points at a
	// scheduling bug, so flush it in id order rather than lose audio.
	if len(inflight) > 0 {
		s.logger.Warn("tasks still in flight after emission completed", slog.Int("count", len(inflight)))
	}
	if len(pending) > 0 {
		s.logger.Warn("draining leftover results", slog.Int("count", len(pending)))
		ids := make([]int, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			if err := s.emitOne(pending[id], emit); err != nil {
				return err
			}
		}
	}

	return emit(Result{ID: total, Final: true})
}

func (s *Scheduler) work(ctx context.Context, handle *engine.Handle, task Task, run RunFunc, results chan<- workerResult) {
	if s.chunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.chunkTimeout)
		defer cancel()
	}
	samples, err := run(ctx, handle, task)
	results <- workerResult{id: task.ID, samples: samples, err: err, instance: handle.Label()}
}

func (s *Scheduler) emitOne(r workerResult, emit EmitFunc) error {
	if r.err != nil {
		s.logger.Warn("chunk inference failed, skipping",
			slog.Int("chunk", r.id),
			slog.String("instance", r.instance),
			slog.String("error", r.err.Error()))
	}
	return emit(Result{ID: r.id, Samples: r.samples, Err: r.err, Instance: r.instance})
}
