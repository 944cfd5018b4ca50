// Package api exposes the OpenAI-compatible speech endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parlatech/parla/internal/audio"
	"github.com/parlatech/parla/internal/pipeline"
	"github.com/parlatech/parla/internal/session"
)

// modelIDs is the static list served for OpenAI client compatibility. All of
// them resolve to the same local engine.
var modelIDs = []string{"tts-1", "tts-1-hd", "parla"}

// speechRequest is the POST /v1/audio/speech body. Fields beyond input,
// voice, speed, response_format, stream, and initial_silence are accepted for
// client compatibility and ignored.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
	Stream         *bool   `json:"stream"`
	InitialSilence *int    `json:"initial_silence"`

	ReturnDownloadLink   bool            `json:"return_download_link"`
	LangCode             string          `json:"lang_code"`
	VolumeMultiplier     float64         `json:"volume_multiplier"`
	DownloadFormat       string          `json:"download_format"`
	NormalizationOptions json.RawMessage `json:"normalization_options"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the speech API over a shared pipeline.
type Handler struct {
	pipe       *pipeline.Pipeline
	store      *session.Store
	sampleRate int
	logger     *slog.Logger
}

func NewHandler(pipe *pipeline.Pipeline, store *session.Store, sampleRate int, log *slog.Logger) *Handler {
	return &Handler{
		pipe:       pipe,
		store:      store,
		sampleRate: sampleRate,
		logger:     log.With(slog.String("component", "api")),
	}
}

// Register wires the speech routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/audio/speech", h.handleSpeech)
	mux.HandleFunc("GET /v1/audio/voices", h.handleVoices)
	mux.HandleFunc("GET /v1/models", h.handleModels)
	mux.HandleFunc("GET /v1/models/{model}", h.handleModel)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
}

func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	preq := pipeline.Request{
		SessionID:      uuid.NewString(),
		Text:           req.Input,
		Voice:          req.Voice,
		Speed:          req.Speed,
		InitialSilence: req.InitialSilence,
	}
	if err := h.pipe.Validate(preq); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stream := req.Stream == nil || *req.Stream
	if stream {
		h.streamSpeech(w, r, preq)
		return
	}
	h.renderSpeech(w, r, preq, req.ResponseFormat)
}

func (h *Handler) streamSpeech(w http.ResponseWriter, r *http.Request, preq pipeline.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported by transport"))
		return
	}

	w.Header().Set("Content-Type", "audio/pcm")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("Cache-Control", "no-cache")
	// Disables proxy buffering so chunks reach the client as they finish.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	asm := audio.NewStreamAssembler(
		func(pcm []byte) error {
			if _, err := w.Write(pcm); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		},
		func() error { return nil },
	)

	stats, err := h.pipe.Run(r.Context(), preq, asm.Emit)
	if err != nil {
		// Headers are gone; nothing to report to the client but the drop.
		h.logger.Warn("streaming synthesis aborted",
			slog.String("session_id", preq.SessionID),
			slog.String("error", err.Error()))
	}
	h.record(r.Context(), preq, stats, asm.BytesSent(), "http-stream", err)
}

func (h *Handler) renderSpeech(w http.ResponseWriter, r *http.Request, preq pipeline.Request, format string) {
	asm := audio.NewBufferAssembler()
	stats, err := h.pipe.Run(r.Context(), preq, asm.Emit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		h.record(r.Context(), preq, stats, 0, "http", err)
		return
	}

	var payload []byte
	var contentType string
	switch format {
	case "pcm":
		payload = audio.PCM16Bytes(asm.Samples())
		contentType = "audio/pcm"
	case "opus":
		payload, err = audio.EncodeOpus(asm.Samples(), h.sampleRate)
		contentType = "audio/opus"
	case "wav", "":
		payload, err = audio.EncodeWAV(asm.Samples(), h.sampleRate)
		contentType = "audio/wav"
	default:
		// mp3, aac, and flac have no local encoder; serve wav instead of
		// failing the request.
		h.logger.Warn("unsupported response format, falling back to wav",
			slog.String("format", format))
		payload, err = audio.EncodeWAV(asm.Samples(), h.sampleRate)
		contentType = "audio/wav"
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		h.record(r.Context(), preq, stats, 0, "http", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
	_, _ = w.Write(payload)
	h.record(r.Context(), preq, stats, int64(len(payload)), "http", nil)
}

func (h *Handler) record(ctx context.Context, preq pipeline.Request, stats pipeline.Stats, bytes int64, transport string, runErr error) {
	if h.store == nil {
		return
	}
	status := "ok"
	if runErr != nil {
		status = "error"
	}
	rec := session.Record{
		SessionID:    preq.SessionID,
		Voice:        stats.Voice,
		Language:     stats.Language,
		Transport:    transport,
		Chunks:       stats.Chunks,
		FailedChunks: stats.Failed,
		Bytes:        bytes,
		DurationMS:   stats.Duration.Milliseconds(),
		Status:       status,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.store.Append(ctx, rec); err != nil {
		h.logger.Warn("failed to record session", slog.String("error", err.Error()))
	}
}

func (h *Handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"voices": h.pipe.Voices()})
}

func (h *Handler) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := make([]map[string]any, 0, len(modelIDs))
	for _, id := range modelIDs {
		models = append(models, modelObject(id))
	}
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("model")
	for _, known := range modelIDs {
		if id == known {
			writeJSON(w, modelObject(id))
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: fmt.Sprintf("model %s not found", id)})
}

func modelObject(id string) map[string]any {
	return map[string]any{
		"id":       id,
		"object":   "model",
		"owned_by": "parla",
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}
