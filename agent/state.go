package agent

// State is a phase of one loop run.
type State string

const (
	StateInit                State = "INIT"
	StateAwaitingLLM         State = "AWAITING_LLM"
	StateToolCallsPending    State = "TOOL_CALLS_PENDING"
	StateExecutingTools      State = "EXECUTING_TOOLS"
	StateFinalAnswer         State = "FINAL_ANSWER"
	StateMaxIterationsForced State = "MAX_ITERATIONS_FORCED"
	StateFailed              State = "FAILED"
)

// IsTerminal reports whether no further transition can follow s.
func (s State) IsTerminal() bool {
	switch s {
	case StateFinalAnswer, StateMaxIterationsForced, StateFailed:
		return true
	default:
		return false
	}
}
