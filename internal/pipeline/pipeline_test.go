package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/parlatech/parla/internal/config"
	"github.com/parlatech/parla/internal/engine"
	"github.com/parlatech/parla/internal/phoneme"
	"github.com/parlatech/parla/internal/scheduler"
	"github.com/parlatech/parla/internal/voice"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTable() *voice.Table {
	bank := make([][]float32, 4)
	for i := range bank {
		bank[i] = make([]float32, voice.VectorSize)
		bank[i][0] = float32(i + 1)
	}
	return voice.NewTable(map[string][][]float32{
		"af_sky":  bank,
		"am_adam": bank,
	})
}

func testPipeline(t *testing.T, workers int) *Pipeline {
	t.Helper()
	pool, err := engine.NewPool(workers, func(int) (engine.Engine, error) {
		return engine.NewMockEngine(), nil
	})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	cfg := config.SynthesisConfig{
		DefaultVoice: "af_sky",
		DefaultSpeed: 1.0,
		Language:     "en-us",
		TargetWords:  10,
		SampleRate:   24000,
	}
	sched := scheduler.New(pool, 0, newLogger())
	p, err := New(cfg, phoneme.NewMockPhonemizer(), testTable(), sched, newLogger())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p
}

func TestRunEmitsOrderedChunksAndMarker(t *testing.T) {
	p := testPipeline(t, 3)

	text := "The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs. How vexingly quick daft zebras jump."
	var results []scheduler.Result
	stats, err := p.Run(context.Background(), Request{SessionID: "s1", Text: text}, func(r scheduler.Result) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Chunks < 2 {
		t.Fatalf("expected multiple chunks, got %d", stats.Chunks)
	}
	if len(results) != stats.Chunks+1 {
		t.Fatalf("expected %d emissions, got %d", stats.Chunks+1, len(results))
	}
	for i, r := range results[:len(results)-1] {
		if r.ID != i {
			t.Fatalf("out of order emission at %d: id %d", i, r.ID)
		}
		if r.Err != nil {
			t.Fatalf("unexpected chunk error: %v", r.Err)
		}
		if len(r.Samples) == 0 {
			t.Fatalf("chunk %d produced no audio", i)
		}
	}
	last := results[len(results)-1]
	if !last.Final || last.ID != stats.Chunks {
		t.Fatalf("unexpected terminal marker: %+v", last)
	}
}

func TestRunRejectsEmptyText(t *testing.T) {
	p := testPipeline(t, 1)
	_, err := p.Run(context.Background(), Request{Text: ""}, func(scheduler.Result) error {
		t.Fatal("no emission expected")
		return nil
	})
	if err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestRunRejectsUnknownVoice(t *testing.T) {
	p := testPipeline(t, 1)
	_, err := p.Run(context.Background(), Request{Text: "hello", Voice: "nobody"}, func(scheduler.Result) error {
		t.Fatal("no emission expected")
		return nil
	})
	if !errors.Is(err, voice.ErrUnknownVoice) {
		t.Fatalf("expected unknown voice error, got %v", err)
	}
}

func TestRunAcceptsBlendWithMissingComponent(t *testing.T) {
	p := testPipeline(t, 1)
	stats, err := p.Run(context.Background(), Request{Text: "hello there", Voice: "af_sky.5+ghost.5"},
		func(scheduler.Result) error { return nil })
	if err != nil {
		t.Fatalf("blend should be accepted: %v", err)
	}
	if stats.Failed != 0 {
		t.Fatalf("expected no failed chunks, got %d", stats.Failed)
	}
}

func TestRunPropagatesEmitError(t *testing.T) {
	p := testPipeline(t, 2)
	gone := errors.New("consumer gone")
	_, err := p.Run(context.Background(), Request{Text: strings.Repeat("one two three four five. ", 4)},
		func(scheduler.Result) error { return gone })
	if !errors.Is(err, gone) {
		t.Fatalf("expected emit error, got %v", err)
	}
}

func TestVoicesListsTableNames(t *testing.T) {
	p := testPipeline(t, 1)
	names := p.Voices()
	if len(names) != 2 || names[0] != "af_sky" || names[1] != "am_adam" {
		t.Fatalf("unexpected voices: %v", names)
	}
}
