// Package agentlab is the composition root of the chat service. A Service
// wires a model, a tool registry, an optional memory store and an optional
// retriever into one request/response surface:
//  1. Fetch the session memory snapshot and the retrieved documents
//  2. Build a token-budgeted context and prepend it as a system message
//  3. Run the tool-calling agent loop (or a single plain model call)
//  4. Rebuild the context with fresh tool results and persist the turn
//
// All collaborators are injected through Options; nothing is global.
package agentlab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentlab/agent"
	"github.com/hupe1980/agentlab/contextbuilder"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/internal/util"
	"github.com/hupe1980/agentlab/logging"
	"github.com/hupe1980/agentlab/memory"
	"github.com/hupe1980/agentlab/model"
	"github.com/hupe1980/agentlab/rag"
	"github.com/hupe1980/agentlab/tool"
)

// Request bounds enforced by the service.
const (
	MinContextTokens = 100
	MaxContextTokens = 8000
	MinRAGTopK       = 1
	MaxRAGTopK       = 20
)

// DefaultContextTemplate renders the assembled context as a system message.
const DefaultContextTemplate = "Use the following context to inform your response:\n\n{{.Context}}"

// ChatRequest is the inbound request surface.
type ChatRequest struct {
	Messages  []core.Message `json:"messages"`
	SessionID string         `json:"session_id,omitempty"`
	// Temperature in [0,1]; nil uses the service default.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens in (0,4000]; 0 uses the service default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// MaxContextTokens in [100,8000]; 0 uses the service default.
	MaxContextTokens int    `json:"max_context_tokens,omitempty"`
	ContextPriority  string `json:"context_priority,omitempty"`
	// ToolNames restricts the bound tools; empty binds all.
	ToolNames     []string `json:"tool_names,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	UseTools      bool     `json:"use_tools"`
	UseMemory     bool     `json:"use_memory"`
	// MemoryTypes selects long-term memory kinds; empty selects all.
	MemoryTypes   []string `json:"memory_types,omitempty"`
	UseRAG        bool     `json:"use_rag"`
	RAGNamespaces []string `json:"rag_namespaces,omitempty"`
	// RAGTopK in [1,20]; 0 uses the service default.
	RAGTopK int `json:"rag_top_k,omitempty"`
	// OnPartial, when set, streams the model output and receives text chunks
	// as they arrive. ResponseText still carries the full answer.
	OnPartial func(text string) `json:"-"`
}

// ChatResponse is the outbound response surface.
type ChatResponse struct {
	ResponseText     string           `json:"response_text"`
	SessionID        string           `json:"session_id,omitempty"`
	AgentSteps       []core.AgentStep `json:"agent_steps"`
	ToolCalls        []core.ToolCall  `json:"tool_calls"`
	ToolsUsed        bool             `json:"tools_used"`
	ContextText      string           `json:"context_text"`
	ContextTokens    int              `json:"context_tokens"`
	TokenBreakdown   map[string]int   `json:"token_breakdown"`
	ContextTruncated bool             `json:"context_truncated"`
	ContextWarnings  []string         `json:"context_warnings,omitempty"`
}

// Options configures a Service.
type Options struct {
	// Tools is the registry bound to the agent loop. Defaults to a registry
	// holding the datetime tool.
	Tools *tool.Registry
	// Memory enables session memory when set.
	Memory memory.Store
	// MemoryToggles caps the long-term memory kinds any request may read.
	// Defaults to every kind; LongTerm=false disables long-term memory.
	MemoryToggles memory.Toggles
	// Retriever enables RAG when set.
	Retriever rag.Retriever
	// RAGNamespaces is searched when a request names no namespaces. Empty
	// searches the retriever's default namespace.
	RAGNamespaces []string
	// Tokenizer counts context tokens. Defaults to tiktoken cl100k_base.
	Tokenizer contextbuilder.Tokenizer
	Logger    logging.Logger

	Temperature      float64
	MaxTokens        int
	MaxContextTokens int
	ContextPriority  contextbuilder.Priority
	RAGTopK          int
	MaxIterations    int
	MaxParallelTools int
	// ContextTemplate renders the context system message; {{.Context}} is
	// the formatted context.
	ContextTemplate string
}

// Service handles chat turns. It is safe for concurrent use.
type Service struct {
	opts    Options
	model   model.Model
	loop    *agent.Loop
	builder *contextbuilder.Builder
	prompt  *util.PromptTemplate
	logger  logging.Logger
}

// New creates a Service around m.
func New(m model.Model, optFns ...func(o *Options)) (*Service, error) {
	if m == nil {
		return nil, core.NewValidationError("model", nil, "a model is required")
	}

	opts := Options{
		Logger:           logging.NoOpLogger{},
		Temperature:      agent.DefaultTemperature,
		MaxTokens:        agent.DefaultMaxTokens,
		MaxContextTokens: contextbuilder.DefaultMaxTokens,
		ContextPriority:  contextbuilder.PriorityBalanced,
		RAGTopK:          rag.DefaultTopK,
		MaxIterations:    agent.DefaultMaxIterations,
		ContextTemplate:  DefaultContextTemplate,
		MemoryToggles:    memory.AllToggles(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		dt, err := tool.NewDateTimeTool(func(o *tool.DateTimeOptions) { o.Logger = opts.Logger })
		if err != nil {
			return nil, err
		}
		opts.Tools = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
		if err := opts.Tools.Register(dt); err != nil {
			return nil, err
		}
	}

	prompt, err := util.ParsePromptTemplate("context", opts.ContextTemplate)
	if err != nil {
		return nil, core.NewValidationError("context_template", opts.ContextTemplate, "%v", err)
	}

	builder, err := contextbuilder.New(func(o *contextbuilder.Options) {
		o.MaxTokens = opts.MaxContextTokens
		o.Tokenizer = opts.Tokenizer
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("context builder: %w", err)
	}

	loop := agent.New(opts.Tools, m, func(o *agent.Options) {
		o.Logger = opts.Logger
		o.MaxIterations = opts.MaxIterations
		o.MaxParallelTools = opts.MaxParallelTools
	})

	return &Service{opts: opts, model: m, loop: loop, builder: builder, prompt: prompt, logger: opts.Logger}, nil
}

// Tools returns the bound registry.
func (s *Service) Tools() *tool.Registry { return s.opts.Tools }

// Model returns the bound model.
func (s *Service) Model() model.Model { return s.model }

// turn carries the normalized request through one Chat call.
type turn struct {
	req         ChatRequest
	sessionID   string
	temperature float64
	maxTokens   int
	builder     *contextbuilder.Builder
	priority    contextbuilder.Priority
	toggles     memory.Toggles
	topK        int
	namespaces  []string
	memory      *core.MemorySnapshot
	documents   []core.Document
}

func (s *Service) prepare(req ChatRequest) (*turn, error) {
	if len(req.Messages) == 0 {
		return nil, core.NewValidationError("messages", nil, "at least one message is required")
	}
	for i, m := range req.Messages {
		if !m.Role.IsEntryRole() {
			return nil, core.NewValidationError(fmt.Sprintf("messages[%d].role", i), m.Role, "role must be one of user, assistant, system")
		}
	}

	t := &turn{req: req, sessionID: req.SessionID, temperature: s.opts.Temperature, maxTokens: s.opts.MaxTokens}

	if req.Temperature != nil {
		t.temperature = *req.Temperature
	}
	if t.temperature < 0 || t.temperature > 1 {
		return nil, core.NewValidationError("temperature", t.temperature, "must be between 0 and 1")
	}

	if req.MaxTokens != 0 {
		t.maxTokens = req.MaxTokens
	}
	if t.maxTokens <= 0 || t.maxTokens > agent.MaxTokensLimit {
		return nil, core.NewValidationError("max_tokens", t.maxTokens, "must be in (0, %d]", agent.MaxTokensLimit)
	}

	if req.MaxIterations < 0 {
		return nil, core.NewValidationError("max_iterations", req.MaxIterations, "must be at least 1")
	}

	maxContext := s.opts.MaxContextTokens
	if req.MaxContextTokens != 0 {
		maxContext = req.MaxContextTokens
		if maxContext < MinContextTokens || maxContext > MaxContextTokens {
			return nil, core.NewValidationError("max_context_tokens", maxContext, "must be between %d and %d", MinContextTokens, MaxContextTokens)
		}
	}
	t.builder = s.builder.WithMaxTokens(maxContext)

	t.priority = s.opts.ContextPriority
	if req.ContextPriority != "" {
		p, err := contextbuilder.ParsePriority(req.ContextPriority)
		if err != nil {
			return nil, err
		}
		t.priority = p
	}

	t.topK = s.opts.RAGTopK
	if req.RAGTopK != 0 {
		t.topK = req.RAGTopK
		if t.topK < MinRAGTopK || t.topK > MaxRAGTopK {
			return nil, core.NewValidationError("rag_top_k", t.topK, "must be between %d and %d", MinRAGTopK, MaxRAGTopK)
		}
	}

	t.namespaces = req.RAGNamespaces
	if len(t.namespaces) == 0 {
		t.namespaces = s.opts.RAGNamespaces
	}

	if len(req.ToolNames) > 0 {
		if !req.UseTools {
			return nil, core.NewValidationError("tool_names", req.ToolNames, "tool_names requires use_tools")
		}
		for _, name := range req.ToolNames {
			if !s.opts.Tools.Has(name) {
				return nil, core.NewValidationError("tool_names", name, "unknown tool '%s'", name)
			}
		}
	}

	toggles, err := memory.ToggleSet(req.MemoryTypes)
	if err != nil {
		return nil, err
	}
	t.toggles = toggles.Intersect(s.opts.MemoryToggles).Effective()

	if t.sessionID == "" {
		t.sessionID = uuid.NewString()
	}

	return t, nil
}

// gather fetches the memory snapshot and retrieved documents the request enables.
func (s *Service) gather(ctx context.Context, t *turn) error {
	logger := logging.With(s.logger, "session.id", t.sessionID)

	if t.req.UseMemory {
		if s.opts.Memory == nil {
			logger.Warn("service.memory.unavailable")
		} else {
			snap, err := s.opts.Memory.GetContext(ctx, t.sessionID, t.toggles)
			if err != nil {
				return fmt.Errorf("load memory: %w", err)
			}
			t.memory = snap
		}
	}

	if t.req.UseRAG {
		if s.opts.Retriever == nil {
			logger.Warn("service.rag.unavailable")
		} else {
			query := model.LastUserText(t.req.Messages)
			docs, err := rag.RetrieveAll(ctx, s.opts.Retriever, query, t.topK, t.namespaces)
			if err != nil {
				return fmt.Errorf("retrieve documents: %w", err)
			}
			t.documents = docs
			logger.Debug("service.rag.retrieved", "documents", len(docs), "top_k", t.topK)
		}
	}

	return nil
}

func (t *turn) build(results []core.ToolResult) *contextbuilder.CombinedContext {
	return t.builder.Build(contextbuilder.Input{
		Memory:       t.memory,
		RAGDocuments: t.documents,
		ToolResults:  results,
		Priority:     t.priority,
	})
}

// BuildContext assembles the context req would start with, without calling
// the model.
func (s *Service) BuildContext(ctx context.Context, req ChatRequest) (*contextbuilder.CombinedContext, error) {
	t, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	if err := s.gather(ctx, t); err != nil {
		return nil, err
	}
	return t.build(nil), nil
}

// Chat handles one conversational turn.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	t, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	logger := logging.With(s.logger, "session.id", t.sessionID)

	if err := s.gather(ctx, t); err != nil {
		return nil, err
	}

	cc := t.build(nil)
	messages, err := s.withContext(req.Messages, contextbuilder.Format(cc))
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{
		SessionID:  t.sessionID,
		AgentSteps: []core.AgentStep{},
		ToolCalls:  []core.ToolCall{},
	}

	if req.UseTools {
		res, err := s.loop.Run(ctx, agent.Request{
			Messages:      messages,
			ToolNames:     req.ToolNames,
			Temperature:   &t.temperature,
			MaxTokens:     t.maxTokens,
			MaxIterations: req.MaxIterations,
			OnPartial:     req.OnPartial,
		})
		if err != nil {
			return nil, err
		}
		resp.ResponseText = res.ResponseText
		resp.AgentSteps = res.Steps
		resp.ToolCalls = res.ToolCalls
		resp.ToolsUsed = res.ToolsUsed()
		if len(res.ToolResults) > 0 {
			cc = t.build(res.ToolResults)
		}
	} else {
		text, err := s.plain(ctx, messages, t)
		if err != nil {
			return nil, err
		}
		resp.ResponseText = text
	}

	resp.ContextText = contextbuilder.Format(cc)
	resp.ContextTokens = cc.TotalTokens
	resp.TokenBreakdown = cc.TokenBreakdown
	resp.ContextTruncated = cc.Truncated
	resp.ContextWarnings = cc.Warnings

	if req.UseMemory && s.opts.Memory != nil {
		if err := s.persist(ctx, t.sessionID, req.Messages, resp); err != nil {
			return nil, err
		}
	}

	logger.Info("service.chat.complete",
		"tools_used", resp.ToolsUsed,
		"steps", len(resp.AgentSteps),
		"context_tokens", resp.ContextTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp, nil
}

// withContext prepends the rendered context as a system message. An empty
// context leaves msgs unchanged.
func (s *Service) withContext(msgs []core.Message, contextText string) ([]core.Message, error) {
	out := make([]core.Message, 0, len(msgs)+1)
	if contextText != "" {
		prompt, err := s.prompt.Render(map[string]any{"Context": contextText})
		if err != nil {
			return nil, fmt.Errorf("render context template: %w", err)
		}
		out = append(out, core.NewMessage(core.RoleSystem, prompt))
	}
	return append(out, msgs...), nil
}

// plain makes a single model call with no tools bound.
func (s *Service) plain(ctx context.Context, msgs []core.Message, t *turn) (string, error) {
	start := time.Now()
	req := model.Request{
		Messages:    msgs,
		Temperature: &t.temperature,
		MaxTokens:   t.maxTokens,
	}
	var resp *model.Response
	var err error
	if t.req.OnPartial != nil {
		resp, err = model.CollectStream(ctx, s.model, req, func(p model.Response) { t.req.OnPartial(p.Content) })
	} else {
		resp, err = model.Collect(ctx, s.model, req)
	}
	logging.LogLLMCall(s.logger, s.model.Info().Name, 1, 0, time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &core.CancellationError{Iteration: 1, Err: ctxErr}
		}
		return "", &core.LLMProviderError{Iteration: 1, Err: err}
	}
	return resp.Content, nil
}

// persist stores the last user message and the assistant answer.
func (s *Service) persist(ctx context.Context, sessionID string, msgs []core.Message, resp *ChatResponse) error {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			if err := s.opts.Memory.AddMessage(ctx, sessionID, msgs[i]); err != nil {
				return fmt.Errorf("store user message: %w", err)
			}
			break
		}
	}

	answer := core.NewMessage(core.RoleAssistant, resp.ResponseText)
	answer.Metadata = map[string]any{"tools_used": resp.ToolsUsed}
	if err := s.opts.Memory.AddMessage(ctx, sessionID, answer); err != nil {
		return fmt.Errorf("store assistant message: %w", err)
	}
	return nil
}
