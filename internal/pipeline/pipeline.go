// Package pipeline wires text chunking, phonemization, pooled inference, and
// ordered emission into a single synthesis entry point shared by the HTTP
// surface and the bus service.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/parlatech/parla/internal/config"
	"github.com/parlatech/parla/internal/engine"
	"github.com/parlatech/parla/internal/phoneme"
	"github.com/parlatech/parla/internal/scheduler"
	"github.com/parlatech/parla/internal/textseg"
	"github.com/parlatech/parla/internal/voice"
)

// leadingSilenceTokens is prepended to the first chunk only, so an utterance
// never starts clipped.
const leadingSilenceTokens = 1

// Request is one synthesis job. Zero-valued fields fall back to the
// configured defaults.
type Request struct {
	SessionID string
	Text      string
	Voice     string
	Language  string
	Speed     float64

	// InitialSilence overrides the default number of leading silence tokens
	// on the first chunk.
	InitialSilence *int
}

// Stats summarizes a completed request for session records and logs.
type Stats struct {
	Voice    string
	Language string
	Chunks   int
	Failed   int
	Duration time.Duration
}

// Pipeline owns the synthesis path from raw text to ordered sample emission.
type Pipeline struct {
	cfg    config.SynthesisConfig
	phon   phoneme.Phonemizer
	table  *voice.Table
	sched  *scheduler.Scheduler
	logger *slog.Logger

	tracer         trace.Tracer
	chunksOK       metric.Int64Counter
	chunksFailed   metric.Int64Counter
	requestLatency metric.Float64Histogram
}

// New builds a pipeline. The phonemizer is gated internally so callers pass
// the raw backend.
func New(cfg config.SynthesisConfig, phon phoneme.Phonemizer, table *voice.Table, sched *scheduler.Scheduler, logger *slog.Logger) (*Pipeline, error) {
	meter := otel.Meter("parla/pipeline")
	chunksOK, err := meter.Int64Counter("parla_chunks_synthesized_total",
		metric.WithDescription("Chunks successfully synthesized"))
	if err != nil {
		return nil, err
	}
	chunksFailed, err := meter.Int64Counter("parla_chunks_failed_total",
		metric.WithDescription("Chunks whose inference failed"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("parla_request_duration_seconds",
		metric.WithDescription("End-to-end synthesis request duration"))
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:            cfg,
		phon:           phoneme.Gated(phon),
		table:          table,
		sched:          sched,
		logger:         logger.With(slog.String("component", "pipeline")),
		tracer:         otel.Tracer("parla/pipeline"),
		chunksOK:       chunksOK,
		chunksFailed:   chunksFailed,
		requestLatency: latency,
	}, nil
}

// Voices returns the sorted names of available voices.
func (p *Pipeline) Voices() []string { return p.table.Names() }

// Validate checks the request before any inference work is dispatched.
func (p *Pipeline) Validate(req Request) error {
	if req.Text == "" {
		return fmt.Errorf("input text must not be empty")
	}
	return p.table.Validate(p.voiceFor(req))
}

func (p *Pipeline) voiceFor(req Request) string {
	if req.Voice != "" {
		return req.Voice
	}
	return p.cfg.DefaultVoice
}

func (p *Pipeline) languageFor(req Request) string {
	if req.Language != "" {
		return req.Language
	}
	return p.cfg.Language
}

func (p *Pipeline) speedFor(req Request) float32 {
	if req.Speed > 0 {
		return float32(req.Speed)
	}
	return float32(p.cfg.DefaultSpeed)
}

// Run synthesizes the request, handing ordered results to emit. It blocks
// until the terminal marker has been emitted, the context is cancelled, or
// emit reports the consumer gone.
func (p *Pipeline) Run(ctx context.Context, req Request, emit scheduler.EmitFunc) (Stats, error) {
	start := time.Now()
	voiceName := p.voiceFor(req)
	language := p.languageFor(req)
	speed := p.speedFor(req)

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("voice", voiceName),
			attribute.String("session_id", req.SessionID),
		))
	defer span.End()

	stats := Stats{Voice: voiceName, Language: language}

	if err := p.Validate(req); err != nil {
		return stats, err
	}

	chunks := textseg.Split(req.Text, p.cfg.TargetWords)
	stats.Chunks = len(chunks)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	p.logger.Debug("request chunked",
		slog.String("session_id", req.SessionID),
		slog.Int("chunks", len(chunks)),
		slog.String("voice", voiceName))

	silence := leadingSilenceTokens
	if req.InitialSilence != nil {
		silence = *req.InitialSilence
	}

	run := func(ctx context.Context, h *engine.Handle, task scheduler.Task) ([]float32, error) {
		phonemes, err := p.phon.Phonemize(ctx, task.Text, language)
		if err != nil {
			return nil, fmt.Errorf("phonemize chunk %d: %w", task.ID, err)
		}
		tokens := phoneme.Tokenize(phonemes)
		if task.First {
			tokens = phoneme.WithLeadingSilence(tokens, silence)
		}
		style, err := p.table.Resolve(voiceName, len(tokens))
		if err != nil {
			return nil, fmt.Errorf("resolve voice for chunk %d: %w", task.ID, err)
		}
		return h.Infer(ctx, phoneme.Pad(tokens), [][]float32{style}, speed)
	}

	countingEmit := func(r scheduler.Result) error {
		if !r.Final {
			if r.Err != nil {
				stats.Failed++
				p.chunksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("voice", voiceName)))
			} else {
				p.chunksOK.Add(ctx, 1, metric.WithAttributes(attribute.String("voice", voiceName)))
			}
		}
		return emit(r)
	}

	err := p.sched.Run(ctx, chunks, run, countingEmit)
	stats.Duration = time.Since(start)
	p.requestLatency.Record(ctx, stats.Duration.Seconds(),
		metric.WithAttributes(attribute.String("voice", voiceName)))
	if err != nil {
		span.RecordError(err)
		return stats, err
	}

	p.logger.Info("synthesis complete",
		slog.String("session_id", req.SessionID),
		slog.Int("chunks", stats.Chunks),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}
