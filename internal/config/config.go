// Package config loads redline configuration from a YAML file with
// environment-variable overrides for secrets and deployment knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"redline/internal/llm"
	"redline/internal/pipeline"
)

// Config holds all redline configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
	Playbook PlaybookConfig `yaml:"playbook"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, openai, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"` // per-call deadline, e.g. "120s"
	MaxTokens int    `yaml:"max_tokens"`
}

// PipelineConfig tunes batching and concurrency.
type PipelineConfig struct {
	BatchSize   int   `yaml:"batch_size"`
	Concurrency int   `yaml:"concurrency"`
	SecondPass  *bool `yaml:"second_pass"` // nil means enabled
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// PlaybookConfig configures rule playbook loading.
type PlaybookConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider: string(llm.ProviderAnthropic),
			Timeout:  "120s",
		},
		Pipeline: PipelineConfig{
			BatchSize:   10,
			Concurrency: 3,
		},
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. A missing file is not an error; defaults plus environment
// apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment variables over the file values. Secrets are
// expected to arrive this way in deployment.
func (c *Config) applyEnv() {
	if v := os.Getenv("REDLINE_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("REDLINE_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("REDLINE_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("REDLINE_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("REDLINE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if c.LLM.APIKey == "" {
		switch llm.Provider(c.LLM.Provider) {
		case llm.ProviderAnthropic:
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case llm.ProviderOpenAI:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case llm.ProviderGemini:
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// CallTimeout parses the per-call deadline, falling back to the default.
func (c Config) CallTimeout() time.Duration {
	if c.LLM.Timeout == "" {
		return llm.DefaultTimeout
	}
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return llm.DefaultTimeout
	}
	return d
}

// LLMOptions maps the config to generation client options.
func (c Config) LLMOptions() llm.Options {
	return llm.Options{
		Provider:  llm.Provider(c.LLM.Provider),
		APIKey:    c.LLM.APIKey,
		Model:     c.LLM.Model,
		BaseURL:   c.LLM.BaseURL,
		MaxTokens: c.LLM.MaxTokens,
		Timeout:   c.CallTimeout(),
	}
}

// PipelineOptions maps the config to the pipeline's knobs.
func (c Config) PipelineOptions() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if c.Pipeline.BatchSize > 0 {
		cfg.BatchSize = c.Pipeline.BatchSize
	}
	if c.Pipeline.Concurrency > 0 {
		cfg.Concurrency = c.Pipeline.Concurrency
	}
	if c.Pipeline.SecondPass != nil {
		cfg.SecondPass = *c.Pipeline.SecondPass
	}
	cfg.CallTimeout = c.CallTimeout()
	return cfg
}
