// Package llm is the boundary to the external text-generation service.
// It defines the minimal client interface the pipeline depends on, HTTP
// implementations for the supported providers, and the defensive JSON
// extraction applied to generation output. Everything upstream treats a
// completion as an unreliable string that is merely supposed to contain
// JSON of a requested shape.
package llm

import (
	"context"
	"time"
)

// Client is the generation capability the pipeline calls. Implementations
// must honor ctx cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider identifies a generation backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// DefaultTimeout bounds a single generation call when config supplies none.
const DefaultTimeout = 120 * time.Second

// DefaultMaxTokens is the completion budget for amendment-sized outputs.
const DefaultMaxTokens = 4096

// defaultTemperature is kept low for structured JSON output.
const defaultTemperature = 0.1
