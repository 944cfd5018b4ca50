package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parlatech/parla/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPool(t *testing.T, n int) *engine.Pool {
	t.Helper()
	pool, err := engine.NewPool(n, func(int) (engine.Engine, error) { return engine.NewMockEngine(), nil })
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

func chunkTexts(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk %d", i)
	}
	return chunks
}

// Later chunks finish first, exercising out-of-order completion.
func reverseDelayRun(total int) RunFunc {
	return func(ctx context.Context, _ *engine.Handle, task Task) ([]float32, error) {
		delay := time.Duration(total-task.ID) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []float32{float32(task.ID)}, nil
	}
}

func TestRunEmitsInOrder(t *testing.T) {
	const total = 10
	for _, poolSize := range []int{1, 2, 3, 4} {
		s := New(testPool(t, poolSize), 0, testLogger())

		var got []Result
		err := s.Run(context.Background(), chunkTexts(total), reverseDelayRun(total), func(r Result) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatalf("pool=%d: run failed: %v", poolSize, err)
		}
		if len(got) != total+1 {
			t.Fatalf("pool=%d: expected %d emissions, got %d", poolSize, total+1, len(got))
		}
		for i := 0; i < total; i++ {
			if got[i].ID != i {
				t.Fatalf("pool=%d: emission %d has id %d", poolSize, i, got[i].ID)
			}
			if got[i].Err != nil {
				t.Fatalf("pool=%d: unexpected chunk error: %v", poolSize, got[i].Err)
			}
			if got[i].Samples[0] != float32(i) {
				t.Fatalf("pool=%d: emission %d carries wrong payload", poolSize, i)
			}
		}
		final := got[total]
		if !final.Final || final.ID != total {
			t.Fatalf("pool=%d: bad terminal marker %+v", poolSize, final)
		}
	}
}

func TestWindowBound(t *testing.T) {
	const poolSize = 3
	const total = 12
	s := New(testPool(t, poolSize), 0, testLogger())

	var active, peak atomic.Int64
	run := func(ctx context.Context, _ *engine.Handle, task Task) ([]float32, error) {
		now := active.Add(1)
		for {
			p := peak.Load()
			if now <= p || peak.CompareAndSwap(p, now) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return []float32{0}, nil
	}

	if err := s.Run(context.Background(), chunkTexts(total), run, func(Result) error { return nil }); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if p := peak.Load(); p > poolSize {
		t.Fatalf("window exceeded: %d tasks in flight with pool size %d", p, poolSize)
	}
}

func TestFailureIsolation(t *testing.T) {
	s := New(testPool(t, 2), 0, testLogger())

	boom := errors.New("engine exploded")
	run := func(ctx context.Context, _ *engine.Handle, task Task) ([]float32, error) {
		if task.ID == 1 {
			return nil, boom
		}
		return []float32{float32(task.ID)}, nil
	}

	var got []Result
	err := s.Run(context.Background(), chunkTexts(3), run, func(r Result) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("a failed chunk must not fail the request: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 emissions, got %d", len(got))
	}
	if got[0].Err != nil || got[2].Err != nil {
		t.Fatal("neighbouring chunks must succeed")
	}
	if !errors.Is(got[1].Err, boom) {
		t.Fatalf("expected failure marker for chunk 1, got %+v", got[1])
	}
	if got[0].ID != 0 || got[1].ID != 1 || got[2].ID != 2 {
		t.Fatalf("ordering broken: %+v", got)
	}
}

func TestTerminationMarker(t *testing.T) {
	for _, total := range []int{0, 1, 5} {
		s := New(testPool(t, 2), 0, testLogger())

		var markers, lastID int
		var lastFinal bool
		err := s.Run(context.Background(), chunkTexts(total), reverseDelayRun(total), func(r Result) error {
			if r.Final {
				markers++
			}
			lastID = r.ID
			lastFinal = r.Final
			return nil
		})
		if err != nil {
			t.Fatalf("total=%d: run failed: %v", total, err)
		}
		if markers != 1 {
			t.Fatalf("total=%d: expected exactly one terminal marker, got %d", total, markers)
		}
		if !lastFinal || lastID != total {
			t.Fatalf("total=%d: terminal marker not last or mis-tagged (id=%d)", total, lastID)
		}
	}
}

func TestCancellationHaltsWithoutMarker(t *testing.T) {
	s := New(testPool(t, 2), 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 8)
	run := func(ctx context.Context, _ *engine.Handle, task Task) ([]float32, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var sawFinal atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, chunkTexts(6), run, func(r Result) error {
			if r.Final {
				sawFinal.Store(true)
			}
			return nil
		})
	}()

	<-started
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sawFinal.Load() {
		t.Fatal("terminal marker must not be emitted on cancellation")
	}
}

func TestEmitErrorHaltsDispatch(t *testing.T) {
	s := New(testPool(t, 2), 0, testLogger())

	gone := errors.New("client disconnected")
	var emitted int
	err := s.Run(context.Background(), chunkTexts(6), reverseDelayRun(6), func(r Result) error {
		emitted++
		return gone
	})
	if !errors.Is(err, gone) {
		t.Fatalf("expected transport error to surface, got %v", err)
	}
	if emitted != 1 {
		t.Fatalf("expected dispatch to halt after first failed emit, got %d emissions", emitted)
	}
}

func TestChunkTimeoutSkips(t *testing.T) {
	s := New(testPool(t, 1), 10*time.Millisecond, testLogger())

	run := func(ctx context.Context, _ *engine.Handle, task Task) ([]float32, error) {
		if task.ID == 0 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []float32{1}, nil
	}

	var got []Result
	err := s.Run(context.Background(), chunkTexts(2), run, func(r Result) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("timed-out chunk must not fail the request: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 emissions, got %d", len(got))
	}
	if !errors.Is(got[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error on chunk 0, got %v", got[0].Err)
	}
	if got[1].Err != nil {
		t.Fatalf("chunk 1 should succeed, got %v", got[1].Err)
	}
}
