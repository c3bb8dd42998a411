package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDLINE_PROVIDER", "REDLINE_API_KEY", "REDLINE_MODEL",
		"REDLINE_BASE_URL", "REDLINE_ADDR",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, string(llm.ProviderAnthropic), cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 3, cfg.Pipeline.Concurrency)
	assert.Nil(t, cfg.Pipeline.SecondPass)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-4o
  timeout: 45s
pipeline:
  batch_size: 5
  concurrency: 2
  second_pass: false
server:
  addr: ":9090"
playbook:
  dir: /etc/redline/playbooks
  watch: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.CallTimeout())
	require.NotNil(t, cfg.Pipeline.SecondPass)
	assert.False(t, *cfg.Pipeline.SecondPass)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/etc/redline/playbooks", cfg.Playbook.Dir)
	assert.True(t, cfg.Playbook.Watch)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "llm: [not a mapping"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDLINE_PROVIDER", "gemini")
	t.Setenv("REDLINE_MODEL", "gemini-2.0-flash")
	t.Setenv("REDLINE_ADDR", ":7000")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-4o
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, ":7000", cfg.Server.Addr)

	// Provider-specific key fallback follows the overridden provider.
	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
}

func TestLoad_ExplicitKeyBeatsProviderFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDLINE_API_KEY", "explicit")
	t.Setenv("ANTHROPIC_API_KEY", "fallback")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestCallTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
		want    time.Duration
	}{
		{"empty falls back", "", llm.DefaultTimeout},
		{"unparseable falls back", "soon", llm.DefaultTimeout},
		{"non-positive falls back", "-5s", llm.DefaultTimeout},
		{"valid", "90s", 90 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.LLM.Timeout = tt.timeout
			assert.Equal(t, tt.want, cfg.CallTimeout())
		})
	}
}

func TestPipelineOptions(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.BatchSize = 4
	cfg.Pipeline.Concurrency = 0 // invalid, keep default
	off := false
	cfg.Pipeline.SecondPass = &off
	cfg.LLM.Timeout = "30s"

	opts := cfg.PipelineOptions()
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, 3, opts.Concurrency)
	assert.False(t, opts.SecondPass)
	assert.Equal(t, 30*time.Second, opts.CallTimeout)
}
