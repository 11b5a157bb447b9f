// Package config loads service settings from YAML or TOML files with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hupe1980/agentlab/contextbuilder"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
	"github.com/hupe1980/agentlab/memory"
	"gopkg.in/yaml.v3"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderScripted  = "scripted"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

const (
	DefaultProvider         = ProviderOpenAI
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultAnthropicModel   = "claude-3-5-haiku-latest"
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 1000
	DefaultMaxIterations    = 5
	DefaultMaxContextTokens = 4000
	DefaultRAGTopK          = 5
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTLAB_"

type Config struct {
	Model   ModelConfig   `yaml:"model" toml:"model"`
	Agent   AgentConfig   `yaml:"agent" toml:"agent"`
	Context ContextConfig `yaml:"context" toml:"context"`
	Memory  MemoryConfig  `yaml:"memory" toml:"memory"`
	RAG     RAGConfig     `yaml:"rag" toml:"rag"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

type ModelConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"` // openai (default), anthropic or scripted
	Name        string  `yaml:"name" toml:"name"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
}

type AgentConfig struct {
	MaxIterations    int `yaml:"max_iterations" toml:"max_iterations"`
	MaxParallelTools int `yaml:"max_parallel_tools" toml:"max_parallel_tools"`
}

type ContextConfig struct {
	MaxTokens int    `yaml:"max_tokens" toml:"max_tokens"`
	Priority  string `yaml:"priority" toml:"priority"`
	// Template renders the context system message; {{.Context}} is the context.
	Template string `yaml:"template" toml:"template"`
}

type MemoryConfig struct {
	Backend    string `yaml:"backend" toml:"backend"` // memory (default) or sqlite
	Path       string `yaml:"path" toml:"path"`
	WindowSize int    `yaml:"window_size" toml:"window_size"`

	EnableSemantic   bool `yaml:"enable_semantic" toml:"enable_semantic"`
	EnableEpisodic   bool `yaml:"enable_episodic" toml:"enable_episodic"`
	EnableProfile    bool `yaml:"enable_profile" toml:"enable_profile"`
	EnableProcedural bool `yaml:"enable_procedural" toml:"enable_procedural"`
	EnableLongTerm   bool `yaml:"enable_long_term" toml:"enable_long_term"`
}

// Toggles returns the configured memory toggles.
func (m MemoryConfig) Toggles() memory.Toggles {
	return memory.Toggles{
		Semantic:   m.EnableSemantic,
		Episodic:   m.EnableEpisodic,
		Profile:    m.EnableProfile,
		Procedural: m.EnableProcedural,
		LongTerm:   m.EnableLongTerm,
	}
}

// MemoryTypes lists the enabled long-term kinds as memory type names.
func (m MemoryConfig) MemoryTypes() []string {
	t := m.Toggles().Effective()
	var out []string
	if t.Semantic {
		out = append(out, memory.TypeSemantic)
	}
	if t.Episodic {
		out = append(out, memory.TypeEpisodic)
	}
	if t.Profile {
		out = append(out, memory.TypeProfile)
	}
	if t.Procedural {
		out = append(out, memory.TypeProcedural)
	}
	return out
}

type RAGConfig struct {
	Backend    string   `yaml:"backend" toml:"backend"` // memory (default) or badger
	Dir        string   `yaml:"dir" toml:"dir"`         // empty runs badger in memory
	TopK       int      `yaml:"top_k" toml:"top_k"`
	Namespaces []string `yaml:"namespaces" toml:"namespaces"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text or json
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    DefaultProvider,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		Agent: AgentConfig{
			MaxIterations: DefaultMaxIterations,
		},
		Context: ContextConfig{
			MaxTokens: DefaultMaxContextTokens,
			Priority:  string(contextbuilder.PriorityBalanced),
		},
		Memory: MemoryConfig{
			Backend:          BackendMemory,
			WindowSize:       memory.DefaultWindowSize,
			EnableSemantic:   true,
			EnableEpisodic:   true,
			EnableProfile:    true,
			EnableProcedural: true,
			EnableLongTerm:   true,
		},
		RAG: RAGConfig{
			Backend: BackendMemory,
			TopK:    DefaultRAGTopK,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file. The
// decoder is chosen by extension: .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	cfg.fillModelDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}
	return nil
}

// applyEnv overrides fields from AGENTLAB_* variables. OPENAI_API_KEY and
// ANTHROPIC_API_KEY fill an empty API key for the matching provider.
func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(name string) string { return getenv(EnvPrefix + name) }

	setString := func(name string, dst *string) {
		if v := env(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) error {
		if v := env(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
		return nil
	}

	setString("MODEL_PROVIDER", &c.Model.Provider)
	setString("MODEL_NAME", &c.Model.Name)
	setString("MODEL_BASE_URL", &c.Model.BaseURL)
	setString("API_KEY", &c.Model.APIKey)
	setString("CONTEXT_PRIORITY", &c.Context.Priority)
	setString("MEMORY_BACKEND", &c.Memory.Backend)
	setString("MEMORY_PATH", &c.Memory.Path)
	setString("RAG_BACKEND", &c.RAG.Backend)
	setString("RAG_DIR", &c.RAG.Dir)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	if v := env("MODEL_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %sMODEL_TEMPERATURE: %w", EnvPrefix, err)
		}
		c.Model.Temperature = f
	}

	for name, dst := range map[string]*int{
		"MODEL_MAX_TOKENS":   &c.Model.MaxTokens,
		"MAX_ITERATIONS":     &c.Agent.MaxIterations,
		"MAX_PARALLEL_TOOLS": &c.Agent.MaxParallelTools,
		"CONTEXT_MAX_TOKENS": &c.Context.MaxTokens,
		"MEMORY_WINDOW_SIZE": &c.Memory.WindowSize,
		"RAG_TOP_K":          &c.RAG.TopK,
	} {
		if err := setInt(name, dst); err != nil {
			return err
		}
	}

	if v := env("RAG_NAMESPACES"); v != "" {
		var ns []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				ns = append(ns, n)
			}
		}
		c.RAG.Namespaces = ns
	}

	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderOpenAI:
			c.Model.APIKey = firstNonEmpty(env("OPENAI_API_KEY"), getenv("OPENAI_API_KEY"))
		case ProviderAnthropic:
			c.Model.APIKey = firstNonEmpty(env("ANTHROPIC_API_KEY"), getenv("ANTHROPIC_API_KEY"))
		}
	}

	return nil
}

func (c *Config) fillModelDefaults() {
	if c.Model.Name != "" {
		return
	}
	switch c.Model.Provider {
	case ProviderOpenAI:
		c.Model.Name = DefaultOpenAIModel
	case ProviderAnthropic:
		c.Model.Name = DefaultAnthropicModel
	}
}

// Validate checks every field against the ranges the service accepts.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ProviderOpenAI, ProviderAnthropic, ProviderScripted}, c.Model.Provider) {
		return core.NewValidationError("model.provider", c.Model.Provider, "must be one of openai, anthropic, scripted")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return core.NewValidationError("model.temperature", c.Model.Temperature, "must be between 0 and 1")
	}
	if c.Model.MaxTokens <= 0 || c.Model.MaxTokens > 4000 {
		return core.NewValidationError("model.max_tokens", c.Model.MaxTokens, "must be in (0, 4000]")
	}
	if c.Agent.MaxIterations < 1 {
		return core.NewValidationError("agent.max_iterations", c.Agent.MaxIterations, "must be at least 1")
	}
	if c.Agent.MaxParallelTools < 0 {
		return core.NewValidationError("agent.max_parallel_tools", c.Agent.MaxParallelTools, "must not be negative")
	}
	if c.Context.MaxTokens < 100 || c.Context.MaxTokens > 8000 {
		return core.NewValidationError("context.max_tokens", c.Context.MaxTokens, "must be between 100 and 8000")
	}
	if _, err := contextbuilder.ParsePriority(c.Context.Priority); err != nil {
		return core.NewValidationError("context.priority", c.Context.Priority, "must be one of memory, rag, balanced")
	}
	switch c.Memory.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Memory.Path == "" {
			return core.NewValidationError("memory.path", c.Memory.Path, "required for the sqlite backend")
		}
	default:
		return core.NewValidationError("memory.backend", c.Memory.Backend, "must be one of memory, sqlite")
	}
	if c.Memory.WindowSize < 1 {
		return core.NewValidationError("memory.window_size", c.Memory.WindowSize, "must be at least 1")
	}
	if c.RAG.Backend != BackendMemory && c.RAG.Backend != BackendBadger {
		return core.NewValidationError("rag.backend", c.RAG.Backend, "must be one of memory, badger")
	}
	if c.RAG.TopK < 1 || c.RAG.TopK > 20 {
		return core.NewValidationError("rag.top_k", c.RAG.TopK, "must be between 1 and 20")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return core.NewValidationError("log.level", c.Log.Level, "%v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return core.NewValidationError("log.format", c.Log.Format, "must be text or json")
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() logging.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.New(&logging.Config{Level: level, Format: c.Log.Format, Output: os.Stderr, Component: "agentlab"})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
