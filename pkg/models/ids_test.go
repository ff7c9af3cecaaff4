package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	canonical := "0f8fad5b-d9cb-469f-a165-70867728950e"
	compact := "0f8fad5bd9cb469fa16570867728950e"

	t.Run("canonical form", func(t *testing.T) {
		id, err := NormalizeID(canonical)
		require.NoError(t, err)
		assert.Equal(t, canonical, id.String())
	})

	t.Run("compact form", func(t *testing.T) {
		id, err := NormalizeID(compact)
		require.NoError(t, err)
		assert.Equal(t, canonical, id.String())
	})

	t.Run("surrounding whitespace", func(t *testing.T) {
		id, err := NormalizeID("  " + canonical + "\n")
		require.NoError(t, err)
		assert.Equal(t, canonical, id.String())
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NormalizeID("not-a-uuid")
		assert.Error(t, err)
	})
}

func TestNormalizeIDField(t *testing.T) {
	_, appErr := NormalizeIDField("task_id", "xyz")
	require.NotNil(t, appErr)
	assert.Equal(t, ErrCodeInvalidFormat, appErr.Code)
	assert.Equal(t, "task_id", appErr.Details["field"])
}

func TestIsGlobalAlias(t *testing.T) {
	assert.True(t, IsGlobalAlias("global"))
	assert.True(t, IsGlobalAlias("GLOBAL"))
	assert.True(t, IsGlobalAlias(" global "))
	assert.True(t, IsGlobalAlias(GlobalSingletonID.String()))
	assert.True(t, IsGlobalAlias("00000000000000000000000000000001"))
	assert.False(t, IsGlobalAlias(uuid.NewString()))
	assert.False(t, IsGlobalAlias("globalish"))
}
