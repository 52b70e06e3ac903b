package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_IsTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	nonTerminal := []TaskStatus{TaskStatusPending, TaskStatusQueued, TaskStatusInProgress, TaskStatusRetrying}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestValidatePriority(t *testing.T) {
	tests := []struct {
		priority int
		wantErr  bool
	}{
		{0, true},
		{1, false},
		{5, false},
		{10, false},
		{11, true},
		{-1, true},
	}

	for _, tt := range tests {
		err := ValidatePriority(tt.priority)
		if tt.wantErr {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestValidateComplexity(t *testing.T) {
	assert.NoError(t, ValidateComplexity(TaskComplexityLow))
	assert.NoError(t, ValidateComplexity(TaskComplexityMedium))
	assert.NoError(t, ValidateComplexity(TaskComplexityHigh))
	assert.Error(t, ValidateComplexity(TaskComplexity("extreme")))
}

func TestValidateTaskStatus(t *testing.T) {
	assert.NoError(t, ValidateTaskStatus(TaskStatusPending))
	assert.NoError(t, ValidateTaskStatus(TaskStatusCompleted))
	assert.Error(t, ValidateTaskStatus(TaskStatus("bogus")))
}

func TestTaskError_Error(t *testing.T) {
	e := &TaskError{Type: TaskErrorTypeNetwork, Message: "connection reset"}
	assert.Equal(t, "network: connection reset", e.Error())
}
