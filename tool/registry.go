package tool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/internal/util"
	"github.com/hupe1980/agentlab/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// entry is an immutable registered tool with its resolved schemas.
type entry struct {
	tool   Tool
	input  *jsonschema.Resolved
	output *jsonschema.Resolved
}

// snapshot is never modified after it is published.
type snapshot struct {
	names []string
	byKey map[string]*entry
}

// Registry owns the set of invocable tools.
//
// Reads (Get, List, Describe, Execute) load an immutable snapshot and take no
// lock. Register, Unregister and Clear copy the snapshot under a single writer
// mutex and publish the copy atomically.
type Registry struct {
	mu     sync.Mutex // serializes writers
	state  atomic.Pointer[snapshot]
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{logger: opts.Logger}
	r.state.Store(&snapshot{byKey: map[string]*entry{}})

	return r
}

// Register adds t. It fails with *core.DuplicateToolError if the name is taken
// and with *core.ValidationError if a schema cannot be resolved.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return core.NewValidationError("name", name, "tool name must not be empty")
	}

	input, err := util.Resolve(t.InputSchema())
	if err != nil {
		return core.NewValidationError("input_schema", name, "resolve input schema: %v", err)
	}
	output, err := util.Resolve(t.OutputSchema())
	if err != nil {
		return core.NewValidationError("output_schema", name, "resolve output schema: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if _, exists := cur.byKey[name]; exists {
		return &core.DuplicateToolError{Name: name}
	}

	next := &snapshot{
		names: make([]string, 0, len(cur.names)+1),
		byKey: make(map[string]*entry, len(cur.byKey)+1),
	}
	next.names = append(next.names, cur.names...)
	next.names = append(next.names, name)
	for k, v := range cur.byKey {
		next.byKey[k] = v
	}
	next.byKey[name] = &entry{tool: t, input: input, output: output}
	r.state.Store(next)

	r.logger.Info("tool.registry.registered", "tool", name, "count", len(next.names))

	return nil
}

// MustRegister registers every tool and panics on the first failure.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Unregister removes the named tool or fails with *core.ToolNotFoundError.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if _, exists := cur.byKey[name]; !exists {
		return &core.ToolNotFoundError{Name: name}
	}

	next := &snapshot{
		names: make([]string, 0, len(cur.names)-1),
		byKey: make(map[string]*entry, len(cur.byKey)-1),
	}
	for _, n := range cur.names {
		if n != name {
			next.names = append(next.names, n)
			next.byKey[n] = cur.byKey[n]
		}
	}
	r.state.Store(next)

	r.logger.Info("tool.registry.unregistered", "tool", name, "count", len(next.names))

	return nil
}

// Clear removes every tool.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Store(&snapshot{byKey: map[string]*entry{}})
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := r.state.Load().byKey[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.state.Load().byKey[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.state.Load().names) }

// List returns tool names in registration order.
func (r *Registry) List() []string {
	names := r.state.Load().names
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Describe returns the descriptor of the named tool.
func (r *Registry) Describe(name string) (core.ToolDescriptor, bool) {
	e, ok := r.state.Load().byKey[name]
	if !ok {
		return core.ToolDescriptor{}, false
	}
	return Describe(e.tool), true
}

// DescribeAll returns descriptors for names, or for every tool in registration
// order when names is empty. Unknown names fail with *core.ToolNotFoundError.
func (r *Registry) DescribeAll(names ...string) ([]core.ToolDescriptor, error) {
	s := r.state.Load()
	if len(names) == 0 {
		names = s.names
	}
	out := make([]core.ToolDescriptor, 0, len(names))
	for _, n := range names {
		e, ok := s.byKey[n]
		if !ok {
			return nil, &core.ToolNotFoundError{Name: n}
		}
		out = append(out, Describe(e.tool))
	}
	return out, nil
}

// Execute resolves call, validates its arguments at the registry boundary and
// runs the tool. Errors are typed:
//
//	*core.ToolNotFoundError   -> name does not resolve; nothing was invoked
//	*core.ValidationError     -> arguments violate the input schema; nothing was invoked
//	*core.ToolExecutionError  -> the tool returned an error or an invalid result
func (r *Registry) Execute(ctx context.Context, call core.ToolCall) (map[string]any, error) {
	e, ok := r.state.Load().byKey[call.Name]
	if !ok {
		return nil, &core.ToolNotFoundError{Name: call.Name}
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	if err := util.ValidateArgs(call.Name, e.input, args); err != nil {
		r.logger.Warn("tool.call.validation_failed", "tool", call.Name, "tool_call_id", call.ID, "error", err.Error())
		return nil, err
	}

	r.logger.Debug("tool.call.start", "tool", call.Name, "tool_call_id", call.ID)

	start := time.Now()

	result, err := e.tool.Execute(ctx, args)
	if err != nil {
		return nil, &core.ToolExecutionError{Tool: call.Name, Err: err}
	}

	if result == nil {
		result = map[string]any{}
	}

	if e.output != nil {
		if verr := util.ValidateArgs(call.Name, e.output, result); verr != nil {
			return nil, &core.ToolExecutionError{Tool: call.Name, Err: fmt.Errorf("invalid result: %w", verr)}
		}
	}

	r.logger.Debug("tool.call.finished", "tool", call.Name, "tool_call_id", call.ID, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
