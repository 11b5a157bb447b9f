package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
	"github.com/hupe1980/agentlab/model"
)

const (
	// DefaultMaxIterations bounds the tool-bearing turns of a run.
	DefaultMaxIterations = 5
	// DefaultMaxTokens is the per-call completion budget.
	DefaultMaxTokens = 1000
	// MaxTokensLimit is the largest accepted completion budget.
	MaxTokensLimit = 4000
	// DefaultTemperature is the sampling temperature when a request sets none.
	DefaultTemperature = 0.7

	// DefaultForcedFinalPrompt is appended as a system message before the
	// tool-less call that ends a run which exhausted its iterations.
	DefaultForcedFinalPrompt = "You have reached the maximum number of tool calls. " +
		"Provide your final answer now using the information gathered so far. Do not request any more tools."

	// ForcedFinalReasoning is recorded on the final step of a forced run.
	ForcedFinalReasoning = "Max iterations reached; forced final answer without tools"
)

// Request is the input of one loop run.
type Request struct {
	// Messages is the initial conversation. Roles must be user, assistant or system.
	Messages []core.Message
	// ToolNames restricts the bound tools. Empty binds every registered tool.
	ToolNames []string
	// Temperature in [0,1]. Nil uses DefaultTemperature.
	Temperature *float64
	// MaxTokens in (0, MaxTokensLimit]. Zero uses DefaultMaxTokens.
	MaxTokens int
	// MaxIterations >= 1. Zero uses the loop default.
	MaxIterations int
	// OnPartial, when set, streams every model call and receives text chunks
	// as they arrive.
	OnPartial func(text string)
}

// Result is the outcome of a completed run.
type Result struct {
	ResponseText string            `json:"response_text"`
	Steps        []core.AgentStep  `json:"agent_steps"`
	ToolCalls    []core.ToolCall   `json:"tool_calls"`
	ToolResults  []core.ToolResult `json:"tool_results"`
	// Messages is the full running conversation including tool turns.
	Messages []core.Message `json:"messages"`
	LLMCalls int            `json:"llm_calls"`
	State    State          `json:"state"`
}

// ToolsUsed reports whether any tool call was executed.
func (r *Result) ToolsUsed() bool { return len(r.ToolCalls) > 0 }

// Options configures a Loop.
type Options struct {
	Logger logging.Logger
	// MaxParallelTools bounds concurrent tool calls within one turn. 0 means
	// no limit.
	MaxParallelTools int
	// MaxIterations is used when a request sets none.
	MaxIterations int
	// ForcedFinalPrompt replaces DefaultForcedFinalPrompt.
	ForcedFinalPrompt string
	// Now is the clock for step timestamps.
	Now func() time.Time
	// NewCallID generates IDs for tool calls the model left unnamed.
	NewCallID func() string
}

// Loop drives model and tool turns until a final answer. A Loop holds no
// per-run state and may serve concurrent runs.
type Loop struct {
	tools ToolSet
	model model.Model
	opts  Options
}

// New creates a Loop over tools and m.
func New(tools ToolSet, m model.Model, optFns ...func(o *Options)) *Loop {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		MaxIterations:     DefaultMaxIterations,
		ForcedFinalPrompt: DefaultForcedFinalPrompt,
		Now:               time.Now,
		NewCallID:         func() string { return "call_" + uuid.NewString() },
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	return &Loop{tools: tools, model: m, opts: opts}
}

// run is the per-invocation state.
type run struct {
	loop      *Loop
	logger    logging.Logger
	state     State
	iteration int
	maxIters  int
	limiter   *core.ModelLimiter
	result    *Result
	base      model.Request
	onPartial func(string)
}

func (r *run) transition(to State) {
	r.logger.Debug("agent.loop.state", "from", string(r.state), "to", string(to), "iteration", r.iteration)
	r.state = to
}

// Run executes one conversational turn.
//
// Entry validation failures return *core.ValidationError before any model
// call. Model failures return *core.LLMProviderError and cancellation of ctx
// returns *core.CancellationError; neither returns a partial result. Tool
// failures are recorded as unsuccessful ToolResults and never abort the run.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	r, err := l.prepare(req)
	if err != nil {
		l.opts.Logger.Warn("agent.loop.invalid_request", "error", err.Error())
		return nil, err
	}

	res, err := r.execute(ctx)

	steps := 0
	if res != nil {
		steps = len(res.Steps)
	}
	logging.LogLoopExecution(l.opts.Logger, steps, r.limiter.Count(), time.Since(start), err)

	return res, err
}

func (l *Loop) prepare(req Request) (*run, error) {
	if len(req.Messages) == 0 {
		return nil, core.NewValidationError("messages", nil, "at least one message is required")
	}
	for i, m := range req.Messages {
		if !m.Role.IsEntryRole() {
			return nil, core.NewValidationError(fmt.Sprintf("messages[%d].role", i), m.Role, "role must be one of user, assistant, system")
		}
	}

	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature < 0 || temperature > 1 {
		return nil, core.NewValidationError("temperature", temperature, "must be between 0 and 1")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxTokens < 0 || maxTokens > MaxTokensLimit {
		return nil, core.NewValidationError("max_tokens", req.MaxTokens, "must be in (0, %d]", MaxTokensLimit)
	}

	maxIterations := req.MaxIterations
	if maxIterations == 0 {
		maxIterations = l.opts.MaxIterations
	}
	if maxIterations < 1 {
		return nil, core.NewValidationError("max_iterations", req.MaxIterations, "must be at least 1")
	}

	tools, err := l.tools.DescribeAll(req.ToolNames...)
	if err != nil {
		var nf *core.ToolNotFoundError
		if errors.As(err, &nf) {
			return nil, core.NewValidationError("tool_names", nf.Name, "unknown tool '%s'", nf.Name)
		}
		return nil, err
	}
	if len(tools) == 0 {
		return nil, core.NewValidationError("tool_names", req.ToolNames, "no tools available")
	}

	msgs := make([]core.Message, len(req.Messages))
	copy(msgs, req.Messages)

	return &run{
		loop:     l,
		logger:   l.opts.Logger,
		state:    StateInit,
		maxIters: maxIterations,
		limiter:  core.NewModelLimiter(maxIterations + 1),
		result:   &Result{Messages: msgs, Steps: []core.AgentStep{}, ToolCalls: []core.ToolCall{}, ToolResults: []core.ToolResult{}},
		base: model.Request{
			Tools:       tools,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		},
		onPartial: req.OnPartial,
	}, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	for r.iteration = 1; r.iteration <= r.maxIters; r.iteration++ {
		r.transition(StateAwaitingLLM)

		resp, err := r.call(ctx, r.base.Tools)
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			r.finish(resp.Content, "", StateFinalAnswer)
			return r.result, nil
		}

		r.transition(StateToolCallsPending)
		calls := r.normalize(resp.ToolCalls)

		r.transition(StateExecutingTools)
		results, err := r.loop.executor().run(ctx, calls)
		if err != nil {
			return nil, r.fail(&core.CancellationError{Iteration: r.iteration, Err: err})
		}

		r.record(resp.Content, calls, results)
	}

	// Iterations exhausted: one more call, no tools bound.
	r.transition(StateAwaitingLLM)
	r.result.Messages = append(r.result.Messages, core.NewMessage(core.RoleSystem, r.loop.opts.ForcedFinalPrompt))

	resp, err := r.call(ctx, nil)
	if err != nil {
		return nil, err
	}

	r.finish(resp.Content, ForcedFinalReasoning, StateMaxIterationsForced)
	r.logger.Warn("agent.loop.max_iterations", "max_iterations", r.maxIters, "llm_calls", r.limiter.Count())
	return r.result, nil
}

// call issues one model call over the running conversation.
func (r *run) call(ctx context.Context, tools []core.ToolDescriptor) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, r.fail(&core.CancellationError{Iteration: r.iteration, Err: err})
	}
	if err := r.limiter.Increment(); err != nil {
		return nil, r.fail(&core.LLMProviderError{Iteration: r.iteration, Err: err})
	}

	req := r.base
	req.Tools = tools
	req.Messages = append([]core.Message(nil), r.result.Messages...)

	start := time.Now()
	var resp *model.Response
	var err error
	if r.onPartial != nil {
		resp, err = model.CollectStream(ctx, r.loop.model, req, func(p model.Response) { r.onPartial(p.Content) })
	} else {
		resp, err = model.Collect(ctx, r.loop.model, req)
	}

	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogLLMCall(r.logger, r.loop.model.Info().Name, r.iteration, tokens, time.Since(start), err)

	r.result.LLMCalls = r.limiter.Count()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, r.fail(&core.CancellationError{Iteration: r.iteration, Err: ctxErr})
		}
		return nil, r.fail(&core.LLMProviderError{Iteration: r.iteration, Err: err})
	}
	return resp, nil
}

// normalize fills missing IDs and timestamps.
func (r *run) normalize(calls []core.ToolCall) []core.ToolCall {
	out := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = r.loop.opts.NewCallID()
		}
		if c.Timestamp.IsZero() {
			c.Timestamp = r.loop.opts.Now()
		}
		if c.Args == nil {
			c.Args = map[string]any{}
		}
		out[i] = c
	}
	return out
}

// record appends the steps of one tool turn and extends the conversation
// with the assistant tool-call message and one tool message per call.
func (r *run) record(content string, calls []core.ToolCall, results []core.ToolResult) {
	assistant := core.NewMessage(core.RoleAssistant, content)
	assistant.ToolCalls = calls
	r.result.Messages = append(r.result.Messages, assistant)

	for i := range calls {
		call, res := calls[i], results[i]
		r.result.Steps = append(r.result.Steps, core.AgentStep{
			StepNumber: len(r.result.Steps) + 1,
			Action:     core.ActionToolCall,
			ToolCall:   &call,
			ToolResult: &res,
		})
		r.result.ToolCalls = append(r.result.ToolCalls, call)
		r.result.ToolResults = append(r.result.ToolResults, res)

		msg := core.NewMessage(core.RoleTool, toolMessageContent(res))
		msg.ToolCallID = call.ID
		msg.Name = call.Name
		r.result.Messages = append(r.result.Messages, msg)
	}
}

func (r *run) finish(text, reasoning string, state State) {
	r.result.Steps = append(r.result.Steps, core.AgentStep{
		StepNumber: len(r.result.Steps) + 1,
		Action:     core.ActionFinalAnswer,
		Reasoning:  reasoning,
	})
	r.result.ResponseText = text
	r.result.Messages = append(r.result.Messages, core.NewMessage(core.RoleAssistant, text))
	r.transition(state)
	r.result.State = state
}

func (r *run) fail(err error) error {
	r.transition(StateFailed)
	r.logger.Error("agent.loop.failed", "iteration", r.iteration, "error", err.Error())
	return err
}

func (l *Loop) executor() *executor {
	return &executor{tools: l.tools, maxParallel: l.opts.MaxParallelTools, logger: l.opts.Logger, now: l.opts.Now}
}

// toolMessageContent serializes a result for the model: the result map on
// success, {"error": msg} otherwise.
func toolMessageContent(res core.ToolResult) string {
	var payload any = res.Result
	if !res.Success {
		payload = map[string]any{"error": res.Error}
	} else if res.Result == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}
