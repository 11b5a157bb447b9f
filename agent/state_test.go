package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_IsTerminal(t *testing.T) {
	for _, s := range []State{StateFinalAnswer, StateMaxIterationsForced, StateFailed} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StateInit, StateAwaitingLLM, StateToolCallsPending, StateExecutingTools} {
		assert.False(t, s.IsTerminal(), s)
	}
}
