// Package speechbus serves synthesis requests arriving over NATS. Each
// request fans out through the shared pipeline; ordered PCM chunks are
// published per session, followed by a done status.
package speechbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parlatech/parla/internal/audio"
	"github.com/parlatech/parla/internal/bus"
	"github.com/parlatech/parla/internal/pipeline"
	"github.com/parlatech/parla/internal/protocol"
	"github.com/parlatech/parla/internal/scheduler"
)

// requestTimeout bounds a single bus-driven synthesis end to end.
const requestTimeout = 45 * time.Second

type Service struct {
	pipe       *pipeline.Pipeline
	bus        *bus.Client
	sampleRate int
	sub        *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func NewService(parent context.Context, pipe *pipeline.Pipeline, busClient *bus.Client, sampleRate int, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		pipe:       pipe,
		bus:        busClient,
		sampleRate: sampleRate,
		ctx:        ctx,
		cancel:     cancel,
		logger:     log.With(slog.String("component", "speechbus")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeechRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeechRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speech request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
		defer cancel()

		sequence := 0
		emit := func(r scheduler.Result) error {
			if r.Final {
				return s.publishChunk(protocol.AudioChunk{
					SessionID:  req.SessionID,
					Sequence:   sequence,
					SampleRate: s.sampleRate,
					Final:      true,
				})
			}
			if r.Err != nil || len(r.Samples) == 0 {
				return nil
			}
			chunk := protocol.AudioChunk{
				SessionID:  req.SessionID,
				Sequence:   sequence,
				SampleRate: s.sampleRate,
				PCM:        audio.PCM16Bytes(r.Samples),
			}
			sequence++
			return s.publishChunk(chunk)
		}

		stats, err := s.pipe.Run(ctx, pipeline.Request{
			SessionID: req.SessionID,
			Text:      req.Text,
			Voice:     req.Voice,
			Language:  req.Language,
			Speed:     req.Speed,
		}, emit)

		status := protocol.SpeechStatus{
			SessionID:    req.SessionID,
			Status:       "completed",
			Chunks:       sequence,
			FailedChunks: stats.Failed,
			Timestamp:    time.Now().UTC(),
		}
		if err != nil {
			s.logger.Warn("bus synthesis failed", slog.String("session_id", req.SessionID), slogError(err))
			status.Status = "failed"
			status.Error = err.Error()
		}
		if data, err := json.Marshal(status); err == nil {
			_ = s.bus.Conn().Publish(protocol.SubjectSpeechDone, data)
		}
	}()
}

func (s *Service) publishChunk(chunk protocol.AudioChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return s.bus.Conn().Publish(protocol.SubjectSpeechAudio, data)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
