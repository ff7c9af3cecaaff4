package core

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func TestInheritanceCache(t *testing.T) {
	cache, err := NewInheritanceCache(16)
	require.NoError(t, err)

	id := uuid.NewString()
	resolved := &models.ResolvedContext{Level: models.ContextLevelTask, Data: models.JSONMap{"k": "v"}}

	_, ok := cache.Get(models.ContextLevelTask, id, "alice")
	assert.False(t, ok)

	cache.Put(models.ContextLevelTask, id, "alice", resolved)
	got, ok := cache.Get(models.ContextLevelTask, id, "alice")
	require.True(t, ok)
	assert.Equal(t, resolved, got)

	// Another user never sees the entry
	_, ok = cache.Get(models.ContextLevelTask, id, "bob")
	assert.False(t, ok)
}

func TestInheritanceCacheBumpInvalidates(t *testing.T) {
	cache, err := NewInheritanceCache(16)
	require.NoError(t, err)

	id := uuid.NewString()
	cache.Put(models.ContextLevelBranch, id, "alice", &models.ResolvedContext{})
	cache.Put(models.ContextLevelBranch, id, "bob", &models.ResolvedContext{})

	before := cache.Version("alice")
	after := cache.Bump("alice")
	assert.Equal(t, before+1, after)

	// Alice's entry is gone, Bob's untouched
	_, ok := cache.Get(models.ContextLevelBranch, id, "alice")
	assert.False(t, ok)
	_, ok = cache.Get(models.ContextLevelBranch, id, "bob")
	assert.True(t, ok)

	// A put after the bump is addressable again
	cache.Put(models.ContextLevelBranch, id, "alice", &models.ResolvedContext{})
	_, ok = cache.Get(models.ContextLevelBranch, id, "alice")
	assert.True(t, ok)
}

func TestNormalizeTarget(t *testing.T) {
	m := &ContextManager{}

	t.Run("global alias forms", func(t *testing.T) {
		for _, raw := range []string{"", "global", "GLOBAL", models.GlobalSingletonID.String()} {
			id, err := m.NormalizeTarget(models.ContextLevelGlobal, raw)
			require.Nil(t, err, "input %q", raw)
			assert.Equal(t, models.GlobalSingletonID, id)
		}
	})

	t.Run("global refuses arbitrary ids", func(t *testing.T) {
		_, err := m.NormalizeTarget(models.ContextLevelGlobal, uuid.NewString())
		require.NotNil(t, err)
		assert.Equal(t, models.ErrCodeValidation, err.Code)
	})

	t.Run("non-global requires a uuid", func(t *testing.T) {
		want := uuid.New()
		id, err := m.NormalizeTarget(models.ContextLevelTask, want.String())
		require.Nil(t, err)
		assert.Equal(t, want, id)

		_, err = m.NormalizeTarget(models.ContextLevelTask, "global")
		require.NotNil(t, err)

		_, err = m.NormalizeTarget(models.ContextLevelTask, "nope")
		require.NotNil(t, err)
		assert.Equal(t, models.ErrCodeInvalidFormat, err.Code)
	})
}
