// Command parla-say synthesizes speech from the command line without a
// running daemon: one utterance to a WAV file, or a file of lines rendered
// concurrently to numbered WAV files.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlatech/parla/internal/audio"
	"github.com/parlatech/parla/internal/config"
	"github.com/parlatech/parla/internal/engine"
	"github.com/parlatech/parla/internal/phoneme"
	"github.com/parlatech/parla/internal/pipeline"
	"github.com/parlatech/parla/internal/scheduler"
	"github.com/parlatech/parla/internal/voice"
)

func main() {
	var (
		configPath string
		text       string
		linesPath  string
		voiceName  string
		speed      float64
		outPath    string
		jobs       int
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults apply if empty)")
	flag.StringVar(&text, "text", "", "Text to synthesize")
	flag.StringVar(&linesPath, "file", "", "File with one line of text per output")
	flag.StringVar(&voiceName, "voice", "", "Voice name or blend")
	flag.Float64Var(&speed, "speed", 0, "Playback speed multiplier")
	flag.StringVar(&outPath, "out", "out.wav", "Output WAV file, or directory in file mode")
	flag.IntVar(&jobs, "jobs", 2, "Concurrent lines in file mode")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if text == "" && linesPath == "" {
		fmt.Fprintln(os.Stderr, "one of -text or -file is required")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	pipe, err := buildPipeline(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	start := time.Now()

	if text != "" {
		if err := sayOne(ctx, pipe, cfg, text, voiceName, speed, outPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s in %s\n", outPath, time.Since(start).Round(time.Millisecond))
		return
	}

	count, err := sayLines(ctx, pipe, cfg, linesPath, voiceName, speed, outPath, jobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d files to %s in %s\n", count, outPath, time.Since(start).Round(time.Millisecond))
}

func buildPipeline(cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	table, err := voice.Load(cfg.Synthesis.VoicesPath)
	if err != nil {
		return nil, fmt.Errorf("load voice table: %w", err)
	}

	var factory func(int) (engine.Engine, error)
	if cfg.Engine.Mode == "exec" {
		factory = func(int) (engine.Engine, error) { return engine.NewExecEngine(cfg.Engine.Command) }
	} else {
		factory = func(int) (engine.Engine, error) { return engine.NewMockEngine(), nil }
	}
	pool, err := engine.NewPool(cfg.Engine.Workers, factory)
	if err != nil {
		return nil, fmt.Errorf("build engine pool: %w", err)
	}

	var phon phoneme.Phonemizer
	if cfg.Phonemizer.Mode == "exec" {
		phon, err = phoneme.NewExecPhonemizer(cfg.Phonemizer.Command)
		if err != nil {
			return nil, fmt.Errorf("build phonemizer: %w", err)
		}
	} else {
		phon = phoneme.NewMockPhonemizer()
	}

	chunkTimeout := time.Duration(cfg.Engine.ChunkTimeoutMS) * time.Millisecond
	sched := scheduler.New(pool, chunkTimeout, logger)
	return pipeline.New(cfg.Synthesis, phon, table, sched, logger)
}

func sayOne(ctx context.Context, pipe *pipeline.Pipeline, cfg config.Config, text, voiceName string, speed float64, outPath string) error {
	asm := audio.NewBufferAssembler()
	_, err := pipe.Run(ctx, pipeline.Request{
		SessionID: "cli",
		Text:      text,
		Voice:     voiceName,
		Speed:     speed,
	}, asm.Emit)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	return audio.WriteWAV(f, asm.Samples(), cfg.Synthesis.SampleRate)
}

func sayLines(ctx context.Context, pipe *pipeline.Pipeline, cfg config.Config, linesPath, voiceName string, speed float64, outDir string, jobs int) (int, error) {
	f, err := os.Open(linesPath)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read input: %w", err)
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("input file %s has no text", linesPath)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, line := range lines {
		g.Go(func() error {
			out := filepath.Join(outDir, fmt.Sprintf("%03d.wav", i))
			if err := sayOne(ctx, pipe, cfg, line, voiceName, speed, out); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(lines), nil
}
