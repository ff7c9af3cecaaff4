package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLevelOrdering(t *testing.T) {
	assert.Equal(t, 0, ContextLevelGlobal.Rank())
	assert.Equal(t, 3, ContextLevelTask.Rank())

	parent, ok := ContextLevelTask.Parent()
	require.True(t, ok)
	assert.Equal(t, ContextLevelBranch, parent)

	parent, ok = ContextLevelProject.Parent()
	require.True(t, ok)
	assert.Equal(t, ContextLevelGlobal, parent)

	_, ok = ContextLevelGlobal.Parent()
	assert.False(t, ok)
}

func TestParseContextLevel(t *testing.T) {
	for _, raw := range []string{"global", "project", "branch", "task"} {
		level, err := ParseContextLevel(raw)
		require.Nil(t, err)
		assert.True(t, level.IsValid())
	}

	_, err := ParseContextLevel("workspace")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeValidation, err.Code)
}
