package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if cfg.RuntimeName != "parla-runtime" {
		t.Errorf("expected runtime name parla-runtime, got %s", cfg.RuntimeName)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected http port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Engine.Mode != "mock" || cfg.Engine.Workers != 4 {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Engine.ChunkTimeoutMS != 0 {
		t.Errorf("expected chunk timeout disabled by default, got %d", cfg.Engine.ChunkTimeoutMS)
	}
	if cfg.Synthesis.DefaultVoice != "af_sky" || cfg.Synthesis.TargetWords != 10 {
		t.Errorf("unexpected synthesis defaults: %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.SampleRate != 24000 {
		t.Errorf("expected sample rate 24000, got %d", cfg.Synthesis.SampleRate)
	}
	if cfg.Bus.Enabled {
		t.Error("expected bus disabled by default")
	}
	if cfg.Sessions.RetentionMode != "session" {
		t.Errorf("expected session retention, got %s", cfg.Sessions.RetentionMode)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parla.yaml")
	content := []byte(`
runtime_name: test-runtime
http:
  port: 9090
engine:
  mode: exec
  command: "./kokoro-infer --model model.onnx"
  workers: 2
synthesis:
  default_voice: am_adam
  target_words: 25
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" {
		t.Errorf("expected test-runtime, got %s", cfg.RuntimeName)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Workers != 2 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Synthesis.DefaultVoice != "am_adam" || cfg.Synthesis.TargetWords != 25 {
		t.Errorf("unexpected synthesis config: %+v", cfg.Synthesis)
	}
	// Defaults survive for fields the file omits.
	if cfg.Telemetry.LogLevel != "info" {
		t.Errorf("expected default log level, got %s", cfg.Telemetry.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARLA_HTTP_PORT", "7070")
	t.Setenv("PARLA_ENGINE_WORKERS", "8")
	t.Setenv("PARLA_ENGINE_CHUNK_TIMEOUT_MS", "5000")
	t.Setenv("PARLA_SYNTHESIS_DEFAULT_SPEED", "1.3")
	t.Setenv("PARLA_BUS_ENABLED", "true")
	t.Setenv("PARLA_BUS_SERVERS", "nats://a:4222, nats://b:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("expected env port 7070, got %d", cfg.HTTP.Port)
	}
	if cfg.Engine.Workers != 8 {
		t.Errorf("expected env workers 8, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.ChunkTimeoutMS != 5000 {
		t.Errorf("expected env chunk timeout 5000, got %d", cfg.Engine.ChunkTimeoutMS)
	}
	if cfg.Synthesis.DefaultSpeed != 1.3 {
		t.Errorf("expected env speed 1.3, got %v", cfg.Synthesis.DefaultSpeed)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://b:4222" {
		t.Errorf("unexpected bus servers: %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }},
		{"exec engine without command", func(c *Config) { c.Engine.Mode = "exec" }},
		{"unknown engine mode", func(c *Config) { c.Engine.Mode = "onnx" }},
		{"exec phonemizer without command", func(c *Config) { c.Phonemizer.Mode = "exec" }},
		{"negative speed", func(c *Config) { c.Synthesis.DefaultSpeed = -1 }},
		{"zero target words", func(c *Config) { c.Synthesis.TargetWords = 0 }},
		{"bad retention", func(c *Config) { c.Sessions.RetentionMode = "forever" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bus without servers", func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Embedded = false
			c.Bus.Servers = nil
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
