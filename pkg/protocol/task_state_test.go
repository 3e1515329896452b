package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStateIsTerminal(t *testing.T) {
	for _, state := range []TaskState{TaskStaging, TaskStarting, TaskRunning} {
		assert.False(t, state.IsTerminal(), string(state))
	}
	for _, state := range []TaskState{TaskFinished, TaskFailed, TaskKilled, TaskLost, TaskError} {
		assert.True(t, state.IsTerminal(), string(state))
	}
}

func TestTaskStateIsFailure(t *testing.T) {
	// Failure states take their whole group down with them.
	for _, state := range []TaskState{TaskFailed, TaskLost, TaskError} {
		assert.True(t, state.IsFailure(), string(state))
	}
	for _, state := range []TaskState{TaskFinished, TaskKilled, TaskRunning} {
		assert.False(t, state.IsFailure(), string(state))
	}
}
