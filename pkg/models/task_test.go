package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTask() *Task {
	return &Task{
		Title:     "wire the auth middleware",
		Status:    TaskStatusTodo,
		Priority:  TaskPriorityMedium,
		Assignees: []string{"coding-agent"},
	}
}

func TestTaskValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.Nil(t, validTask().Validate())
	})

	t.Run("missing title", func(t *testing.T) {
		task := validTask()
		task.Title = ""
		err := task.Validate()
		require.NotNil(t, err)
		assert.Equal(t, ErrCodeValidation, err.Code)
	})

	t.Run("no assignees", func(t *testing.T) {
		task := validTask()
		task.Assignees = nil
		err := task.Validate()
		require.NotNil(t, err)
		assert.Equal(t, "assignees", err.Details["field"])
	})

	t.Run("unknown status", func(t *testing.T) {
		task := validTask()
		task.Status = "paused"
		require.NotNil(t, task.Validate())
	})

	t.Run("progress out of range", func(t *testing.T) {
		task := validTask()
		task.Progress = 101
		require.NotNil(t, task.Validate())
	})
}

func TestTaskAppendProgress(t *testing.T) {
	task := validTask()

	require.Nil(t, task.AppendProgress("started on the parser", 25))
	require.Nil(t, task.AppendProgress("parser done, writing tests", 70))
	require.Nil(t, task.AppendProgress("all green", 100))

	// Entries are numbered 1..N without gaps
	assert.Equal(t, 3, task.ProgressEntryCount())
	for _, key := range []string{"1", "2", "3"} {
		entry, ok := task.ProgressHistory[key].(map[string]interface{})
		require.True(t, ok, "entry %s missing", key)
		assert.NotEmpty(t, entry["content"])
		assert.NotEmpty(t, entry["timestamp"])
	}
	assert.Equal(t, 100, task.Progress)

	err := task.AppendProgress("too much", 150)
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Equal(t, 3, task.ProgressEntryCount())
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.True(t, TaskStatusDone.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
	assert.False(t, TaskStatusTodo.IsTerminal())
	assert.False(t, TaskStatusInProgress.IsTerminal())
	assert.False(t, TaskStatusBlocked.IsTerminal())
}
