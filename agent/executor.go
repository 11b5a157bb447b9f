package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
)

// ToolSet is the registry surface the loop depends on. *tool.Registry
// satisfies it.
type ToolSet interface {
	DescribeAll(names ...string) ([]core.ToolDescriptor, error)
	Execute(ctx context.Context, call core.ToolCall) (map[string]any, error)
}

// executor runs the tool calls of one model turn, bounded by maxParallel,
// and returns exactly one ToolResult per call in call order.
type executor struct {
	tools       ToolSet
	maxParallel int
	logger      logging.Logger
	now         func() time.Time
}

// run executes calls. It returns ctx.Err() if the batch was cancelled; in
// that case the results are incomplete and must be discarded.
func (e *executor) run(ctx context.Context, calls []core.ToolCall) ([]core.ToolResult, error) {
	n := len(calls)
	results := make([]core.ToolResult, n)
	if n == 0 {
		return results, nil
	}

	if n == 1 {
		results[0] = e.executeOne(ctx, calls[0])
		return results, ctx.Err()
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		if ctx.Err() != nil { // pre-check cancellation
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			// Each goroutine owns its slot; no lock needed.
			results[idx] = e.executeOne(ctx, call)
		}(i, calls[i])
	}

	wg.Wait()

	e.logger.Debug(
		"agent.tools.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results, ctx.Err()
}

func (e *executor) executeOne(ctx context.Context, call core.ToolCall) core.ToolResult {
	start := time.Now()

	var (
		result map[string]any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{val: r, stack: debug.Stack()}
				e.logger.Error("agent.tool.panic", "tool", call.Name, "tool_call_id", call.ID, "recover", fmt.Sprint(r))
			}
		}()
		result, err = e.tools.Execute(ctx, call)
	}()

	logging.LogToolCall(e.logger, call.Name, call.ID, time.Since(start), err)

	tr := core.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Timestamp:  e.now(),
	}
	if err != nil {
		tr.Error = toolErrorMessage(err)
		return tr
	}
	tr.Success = true
	tr.Result = result
	return tr
}

// toolErrorMessage unwraps registry wrappers so the model sees the tool's own message.
func toolErrorMessage(err error) string {
	var execErr *core.ToolExecutionError
	if errors.As(err, &execErr) && execErr.Err != nil {
		return execErr.Err.Error()
	}
	return err.Error()
}

type panicError struct {
	val   any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
