package llm

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Options is the provider-independent client configuration resolved from
// config or the environment.
type Options struct {
	Provider  Provider
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// NewClient builds a concrete client for the configured provider.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		cfg := DefaultAnthropicConfig(opts.APIKey)
		applyOverrides(&cfg.Model, &cfg.BaseURL, &cfg.MaxTokens, &cfg.Timeout, opts)
		return NewAnthropicClientWithConfig(cfg), nil
	case ProviderOpenAI:
		cfg := DefaultOpenAIConfig(opts.APIKey)
		applyOverrides(&cfg.Model, &cfg.BaseURL, &cfg.MaxTokens, &cfg.Timeout, opts)
		return NewOpenAIClientWithConfig(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:    opts.APIKey,
			Model:     opts.Model,
			MaxTokens: opts.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %q", opts.Provider)
	}
}

func applyOverrides(model, baseURL *string, maxTokens *int, timeout *time.Duration, opts Options) {
	if opts.Model != "" {
		*model = opts.Model
	}
	if opts.BaseURL != "" {
		*baseURL = opts.BaseURL
	}
	if opts.MaxTokens > 0 {
		*maxTokens = opts.MaxTokens
	}
	if opts.Timeout > 0 {
		*timeout = opts.Timeout
	}
}

// FromEnv detects a provider from environment variables.
// Priority: ANTHROPIC_API_KEY > OPENAI_API_KEY > GEMINI_API_KEY.
func FromEnv(ctx context.Context) (Client, error) {
	probes := []struct {
		envVar   string
		provider Provider
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}
	for _, p := range probes {
		if key := os.Getenv(p.envVar); key != "" {
			return NewClient(ctx, Options{Provider: p.provider, APIKey: key})
		}
	}
	return nil, fmt.Errorf("no API key found; set one of: ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY")
}
