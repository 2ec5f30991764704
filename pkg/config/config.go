// Package config loads the Axon runtime configuration from YAML files and
// the environment (AXON_ prefix), with coded defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	LLM       LLMConfig       `koanf:"llm"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Memory    MemoryConfig    `koanf:"memory"`
	Store     StoreConfig     `koanf:"store"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type LLMConfig struct {
	Provider      string `koanf:"provider"` // ollama
	BaseURL       string `koanf:"base_url"`
	Model         string `koanf:"model"`          // primary, higher-capability tier
	FallbackModel string `koanf:"fallback_model"` // used once on overload
}

type SchedulerConfig struct {
	Concurrency  int `koanf:"concurrency"`
	TickMillis   int `koanf:"tick_ms"`
	MaxTurns     int `koanf:"max_turns"`
	LogRingLimit int `koanf:"log_ring_limit"`
}

type MemoryConfig struct {
	Provider      string  `koanf:"provider"` // inmemory, qdrant
	QdrantAddr    string  `koanf:"qdrant_addr"`
	Collection    string  `koanf:"collection"`
	MinSimilarity float64 `koanf:"min_similarity"`
}

type StoreConfig struct {
	Path string `koanf:"path"` // sqlite database file
}

// Load reads configuration, layering defaults, an optional YAML file, and
// AXON_-prefixed environment variables (AXON_LLM_MODEL -> llm.model).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "stdout")
	k.Set("llm.provider", "ollama")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.fallback_model", "llama3.2:3b")
	k.Set("scheduler.concurrency", 5)
	k.Set("scheduler.tick_ms", 500)
	k.Set("scheduler.max_turns", 10)
	k.Set("scheduler.log_ring_limit", 200)
	k.Set("memory.provider", "inmemory")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "axon_memories")
	k.Set("memory.min_similarity", 0.65)
	k.Set("store.path", "axon.db")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("AXON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AXON_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations that cannot produce a working runtime.
// These are fatal at startup and never retried.
func (c *Config) validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be >= 1, got %d", c.Scheduler.Concurrency)
	}
	if c.Scheduler.MaxTurns < 1 {
		return fmt.Errorf("scheduler.max_turns must be >= 1, got %d", c.Scheduler.MaxTurns)
	}
	if c.Memory.Provider == "qdrant" && c.Memory.QdrantAddr == "" {
		return fmt.Errorf("memory.qdrant_addr is required for the qdrant provider")
	}
	return nil
}
