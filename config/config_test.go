package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", EnvPrefix + "API_KEY", EnvPrefix + "OPENAI_API_KEY", EnvPrefix + "ANTHROPIC_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultTemperature, cfg.Model.Temperature)
	assert.Equal(t, 1000, cfg.Model.MaxTokens)
	assert.Equal(t, 4000, cfg.Context.MaxTokens)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 10, cfg.Memory.WindowSize)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, memory.AllToggles(), cfg.Memory.Toggles())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "agentlab.yaml", `
model:
  provider: anthropic
  temperature: 0.2
  max_tokens: 2000
agent:
  max_iterations: 3
  max_parallel_tools: 4
context:
  max_tokens: 2000
  priority: rag
memory:
  backend: sqlite
  path: /tmp/agentlab.db
  window_size: 6
  enable_profile: false
rag:
  backend: badger
  top_k: 8
  namespaces: [docs, faq]
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, DefaultAnthropicModel, cfg.Model.Name)
	assert.Equal(t, 0.2, cfg.Model.Temperature)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
	assert.Equal(t, 4, cfg.Agent.MaxParallelTools)
	assert.Equal(t, "rag", cfg.Context.Priority)
	assert.Equal(t, BackendSQLite, cfg.Memory.Backend)
	assert.Equal(t, 6, cfg.Memory.WindowSize)
	assert.False(t, cfg.Memory.EnableProfile)
	assert.True(t, cfg.Memory.EnableSemantic, "unset keys keep defaults")
	assert.Equal(t, []string{"semantic", "episodic", "procedural"}, cfg.Memory.MemoryTypes())
	assert.Equal(t, []string{"docs", "faq"}, cfg.RAG.Namespaces)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "agentlab.toml", `
[model]
provider = "openai"
name = "gpt-4o"

[context]
max_tokens = 1500

[memory]
enable_long_term = false

[rag]
top_k = 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 1500, cfg.Context.MaxTokens)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Empty(t, cfg.Memory.MemoryTypes())
	assert.Equal(t, DefaultTemperature, cfg.Model.Temperature)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"MODEL_PROVIDER", "anthropic")
	t.Setenv(EnvPrefix+"MODEL_TEMPERATURE", "0.1")
	t.Setenv(EnvPrefix+"RAG_TOP_K", "7")
	t.Setenv(EnvPrefix+"RAG_NAMESPACES", "a, b,,c")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, 0.1, cfg.Model.Temperature)
	assert.Equal(t, 7, cfg.RAG.TopK)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.RAG.Namespaces)
	assert.Equal(t, "sk-ant", cfg.Model.APIKey)
}

func TestLoad_PrefixedKeyWinsOverFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-plain")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "sk-prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.Model.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeFile(t, "agentlab.json", `{}`))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", `[model`))
	assert.ErrorContains(t, err, "parse config")

	t.Setenv(EnvPrefix+"RAG_TOP_K", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvPrefix+"RAG_TOP_K")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"provider", func(c *Config) { c.Model.Provider = "gemini" }, "model.provider"},
		{"temperature", func(c *Config) { c.Model.Temperature = 1.2 }, "model.temperature"},
		{"max tokens", func(c *Config) { c.Model.MaxTokens = 0 }, "model.max_tokens"},
		{"iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "agent.max_iterations"},
		{"context low", func(c *Config) { c.Context.MaxTokens = 50 }, "context.max_tokens"},
		{"priority", func(c *Config) { c.Context.Priority = "speed" }, "context.priority"},
		{"sqlite path", func(c *Config) { c.Memory.Backend = BackendSQLite }, "memory.path"},
		{"memory backend", func(c *Config) { c.Memory.Backend = "redis" }, "memory.backend"},
		{"rag backend", func(c *Config) { c.RAG.Backend = "qdrant" }, "rag.backend"},
		{"top k", func(c *Config) { c.RAG.TopK = 21 }, "rag.top_k"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var vErr *core.ValidationError
			require.ErrorAs(t, cfg.Validate(), &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
