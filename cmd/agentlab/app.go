package main

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/agentlab"
	"github.com/hupe1980/agentlab/config"
	"github.com/hupe1980/agentlab/contextbuilder"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
	"github.com/hupe1980/agentlab/memory"
	"github.com/hupe1980/agentlab/model"
	"github.com/hupe1980/agentlab/model/anthropic"
	"github.com/hupe1980/agentlab/model/openai"
	"github.com/hupe1980/agentlab/rag"
)

// indexer is a retriever that also accepts documents.
type indexer interface {
	rag.Retriever
	Add(ctx context.Context, namespace string, docs ...core.Document) error
	Delete(ctx context.Context, namespace, id string) error
}

// app bundles the service with the backends it was built from.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	service *agentlab.Service
	store   memory.Store
	index   indexer
	closers []func() error
}

// ModelFactory creates the model for a config (allows injecting fakes in tests).
type ModelFactory func(cfg *config.Config) (model.Model, error)

var modelFactory ModelFactory = DefaultModelFactory

// DefaultModelFactory builds the provider adapter named by the config.
func DefaultModelFactory(cfg *config.Config) (model.Model, error) {
	switch cfg.Model.Provider {
	case config.ProviderOpenAI:
		if cfg.Model.APIKey == "" {
			return nil, errors.New("API key not set. Set AGENTLAB_API_KEY or OPENAI_API_KEY")
		}
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Model.Name
			o.APIKey = cfg.Model.APIKey
			o.BaseURL = cfg.Model.BaseURL
			o.Temperature = cfg.Model.Temperature
			o.MaxCompletionTokens = int64(cfg.Model.MaxTokens)
		}), nil
	case config.ProviderAnthropic:
		if cfg.Model.APIKey == "" {
			return nil, errors.New("API key not set. Set AGENTLAB_API_KEY or ANTHROPIC_API_KEY")
		}
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model.Name)
			o.APIKey = cfg.Model.APIKey
			o.BaseURL = cfg.Model.BaseURL
			o.Temperature = cfg.Model.Temperature
			o.MaxTokens = int64(cfg.Model.MaxTokens)
		}), nil
	case config.ProviderScripted:
		return model.NewMockModel("mock", config.ProviderScripted), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Model.Provider)
	}
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: cfg.Logger()}

	if err := a.openMemory(); err != nil {
		return nil, err
	}
	if err := a.openIndex(); err != nil {
		_ = a.Close()
		return nil, err
	}

	m, err := modelFactory(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	svc, err := agentlab.New(m, func(o *agentlab.Options) {
		o.Memory = a.store
		o.MemoryToggles = cfg.Memory.Toggles()
		o.Retriever = a.index
		o.RAGNamespaces = cfg.RAG.Namespaces
		o.Logger = a.logger
		o.Temperature = cfg.Model.Temperature
		o.MaxTokens = cfg.Model.MaxTokens
		o.MaxContextTokens = cfg.Context.MaxTokens
		o.ContextPriority = contextbuilder.Priority(cfg.Context.Priority)
		o.RAGTopK = cfg.RAG.TopK
		o.MaxIterations = cfg.Agent.MaxIterations
		o.MaxParallelTools = cfg.Agent.MaxParallelTools
		if cfg.Context.Template != "" {
			o.ContextTemplate = cfg.Context.Template
		}
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}
	a.service = svc

	return a, nil
}

func (a *app) openMemory() error {
	switch a.cfg.Memory.Backend {
	case config.BackendSQLite:
		s, err := memory.NewSQLiteStore(a.cfg.Memory.Path, func(o *memory.SQLiteOptions) {
			o.WindowSize = a.cfg.Memory.WindowSize
			o.Logger = a.logger
		})
		if err != nil {
			return fmt.Errorf("open memory: %w", err)
		}
		a.store = s
	default:
		a.store = memory.NewInMemoryStore(func(o *memory.InMemoryOptions) {
			o.WindowSize = a.cfg.Memory.WindowSize
			o.Logger = a.logger
		})
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *app) openIndex() error {
	switch a.cfg.RAG.Backend {
	case config.BackendBadger:
		idx, err := rag.NewBadgerIndex(func(o *rag.BadgerOptions) {
			o.Dir = a.cfg.RAG.Dir
			o.InMemory = a.cfg.RAG.Dir == ""
			o.Logger = a.logger
		})
		if err != nil {
			return fmt.Errorf("open rag index: %w", err)
		}
		a.index = idx
		a.closers = append(a.closers, idx.Close)
	default:
		a.index = rag.NewInMemoryIndex()
	}
	return nil
}

// persistentIndex reports whether documents added by one invocation survive to the next.
func (a *app) persistentIndex() bool {
	return a.cfg.RAG.Backend == config.BackendBadger && a.cfg.RAG.Dir != ""
}

func (a *app) persistentMemory() bool {
	return a.cfg.Memory.Backend == config.BackendSQLite
}

// Close releases the backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
