// Package runtime assembles the daemon: telemetry, voice table, engine pool,
// pipeline, session store, HTTP surface, and the optional bus services.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parlatech/parla/internal/api"
	"github.com/parlatech/parla/internal/bus"
	"github.com/parlatech/parla/internal/config"
	"github.com/parlatech/parla/internal/engine"
	"github.com/parlatech/parla/internal/natsserver"
	"github.com/parlatech/parla/internal/phoneme"
	"github.com/parlatech/parla/internal/pipeline"
	"github.com/parlatech/parla/internal/presence"
	"github.com/parlatech/parla/internal/scheduler"
	"github.com/parlatech/parla/internal/session"
	"github.com/parlatech/parla/internal/speechbus"
	"github.com/parlatech/parla/internal/voice"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	store     *session.Store
	busClient *bus.Client
	embedded  *natsserver.EmbeddedServer
	speechSvc *speechbus.Service
	announcer *presence.Announcer
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	table, err := voice.Load(r.cfg.Synthesis.VoicesPath)
	if err != nil {
		return fmt.Errorf("failed to load voice table: %w", err)
	}
	r.logger.Info("voice table loaded", slog.Int("voices", table.Count()))

	pool, err := r.buildPool()
	if err != nil {
		return fmt.Errorf("failed to build engine pool: %w", err)
	}

	phon, err := r.buildPhonemizer()
	if err != nil {
		return fmt.Errorf("failed to build phonemizer: %w", err)
	}

	chunkTimeout := time.Duration(r.cfg.Engine.ChunkTimeoutMS) * time.Millisecond
	sched := scheduler.New(pool, chunkTimeout, r.logger)
	pipe, err := pipeline.New(r.cfg.Synthesis, phon, table, sched, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	r.store, err = session.Open(ctx, r.cfg.Sessions, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx, pipe, table, pool); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	api.NewHandler(pipe, r.store, r.cfg.Synthesis.SampleRate, r.logger).Register(mux)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Int("workers", pool.Count()),
		slog.String("engine", r.cfg.Engine.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.speechSvc != nil {
		r.speechSvc.Close()
	}
	if r.announcer != nil {
		r.announcer.Close()
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("session store close error", slog.String("error", err.Error()))
		}
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildPool() (*engine.Pool, error) {
	switch r.cfg.Engine.Mode {
	case "exec":
		return engine.NewPool(r.cfg.Engine.Workers, func(int) (engine.Engine, error) {
			return engine.NewExecEngine(r.cfg.Engine.Command)
		})
	default:
		return engine.NewPool(r.cfg.Engine.Workers, func(int) (engine.Engine, error) {
			return engine.NewMockEngine(), nil
		})
	}
}

func (r *Runtime) buildPhonemizer() (phoneme.Phonemizer, error) {
	switch r.cfg.Phonemizer.Mode {
	case "exec":
		return phoneme.NewExecPhonemizer(r.cfg.Phonemizer.Command)
	default:
		return phoneme.NewMockPhonemizer(), nil
	}
}

func (r *Runtime) startBus(ctx context.Context, pipe *pipeline.Pipeline, table *voice.Table, pool *engine.Pool) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	r.embedded = embedded

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://localhost:%d", busCfg.Port)}
	}
	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.busClient = client

	svc := speechbus.NewService(ctx, pipe, client, r.cfg.Synthesis.SampleRate, r.logger)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start speech bus service: %w", err)
	}
	r.speechSvc = svc

	announcer, err := presence.NewAnnouncer(ctx, uuid.NewString(), table.Count(), pool.Count(), client, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start presence announcer: %w", err)
	}
	r.announcer = announcer

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if r.cfg.Bus.Enabled && (r.busClient == nil || !r.busClient.Healthy()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
