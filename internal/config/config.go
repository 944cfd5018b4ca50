package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Engine      EngineConfig     `yaml:"engine"`
	Phonemizer  PhonemizerConfig `yaml:"phonemizer"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Sessions    SessionsConfig   `yaml:"sessions"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EngineConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Workers        int    `yaml:"workers"`
	ChunkTimeoutMS int    `yaml:"chunk_timeout_ms"`
}

type PhonemizerConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type SynthesisConfig struct {
	VoicesPath   string  `yaml:"voices_path"`
	DefaultVoice string  `yaml:"default_voice"`
	DefaultSpeed float64 `yaml:"default_speed"`
	Language     string  `yaml:"language"`
	TargetWords  int     `yaml:"target_words"`
	SampleRate   int     `yaml:"sample_rate"`
}

type SessionsConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "parla-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Engine: EngineConfig{
			Mode:           "mock",
			Workers:        4,
			ChunkTimeoutMS: 0,
		},
		Phonemizer: PhonemizerConfig{
			Mode: "mock",
		},
		Synthesis: SynthesisConfig{
			VoicesPath:   "./data/voices.json",
			DefaultVoice: "af_sky",
			DefaultSpeed: 1.0,
			Language:     "en-us",
			TargetWords:  10,
			SampleRate:   24000,
		},
		Sessions: SessionsConfig{
			Path:          "./data/parla-sessions.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PARLA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PARLA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PARLA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PARLA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PARLA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PARLA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PARLA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "PARLA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "PARLA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PARLA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PARLA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PARLA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PARLA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PARLA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PARLA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PARLA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PARLA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Engine.Mode, "PARLA_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "PARLA_ENGINE_COMMAND")
	overrideString(&cfg.Engine.ModelPath, "PARLA_ENGINE_MODEL_PATH")
	overrideInt(&cfg.Engine.Workers, "PARLA_ENGINE_WORKERS")
	overrideInt(&cfg.Engine.ChunkTimeoutMS, "PARLA_ENGINE_CHUNK_TIMEOUT_MS")
	overrideString(&cfg.Phonemizer.Mode, "PARLA_PHONEMIZER_MODE")
	overrideString(&cfg.Phonemizer.Command, "PARLA_PHONEMIZER_COMMAND")
	overrideString(&cfg.Synthesis.VoicesPath, "PARLA_SYNTHESIS_VOICES_PATH")
	overrideString(&cfg.Synthesis.DefaultVoice, "PARLA_SYNTHESIS_DEFAULT_VOICE")
	overrideFloat(&cfg.Synthesis.DefaultSpeed, "PARLA_SYNTHESIS_DEFAULT_SPEED")
	overrideString(&cfg.Synthesis.Language, "PARLA_SYNTHESIS_LANGUAGE")
	overrideInt(&cfg.Synthesis.TargetWords, "PARLA_SYNTHESIS_TARGET_WORDS")
	overrideInt(&cfg.Synthesis.SampleRate, "PARLA_SYNTHESIS_SAMPLE_RATE")
	overrideString(&cfg.Sessions.Path, "PARLA_SESSIONS_PATH")
	overrideString(&cfg.Sessions.RetentionMode, "PARLA_SESSIONS_RETENTION_MODE")
	overrideInt(&cfg.Sessions.RetentionDays, "PARLA_SESSIONS_RETENTION_DAYS")
	overrideInt(&cfg.Sessions.MaxSessions, "PARLA_SESSIONS_MAX_SESSIONS")
	overrideBool(&cfg.Sessions.VacuumOnStart, "PARLA_SESSIONS_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.Workers < 1 {
		return errors.New("engine.workers must be >= 1")
	}
	if cfg.Engine.ChunkTimeoutMS < 0 {
		return errors.New("engine.chunk_timeout_ms must be >= 0")
	}
	switch cfg.Phonemizer.Mode {
	case "mock", "exec":
	default:
		return errors.New("phonemizer.mode must be one of mock|exec")
	}
	if cfg.Phonemizer.Mode == "exec" && cfg.Phonemizer.Command == "" {
		return errors.New("phonemizer.command must be set when mode=exec")
	}
	if cfg.Synthesis.VoicesPath == "" {
		return errors.New("synthesis.voices_path must not be empty")
	}
	if cfg.Synthesis.DefaultVoice == "" {
		return errors.New("synthesis.default_voice must not be empty")
	}
	if cfg.Synthesis.DefaultSpeed <= 0 {
		return errors.New("synthesis.default_speed must be positive")
	}
	if cfg.Synthesis.TargetWords <= 0 {
		return errors.New("synthesis.target_words must be positive")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Sessions.Path == "" {
		return errors.New("sessions.path must not be empty")
	}
	switch cfg.Sessions.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("sessions.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Sessions.RetentionDays < 0 {
		return errors.New("sessions.retention_days must be >= 0")
	}
	return nil
}
