package core

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

func TestResolveFoldsAncestorChain(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	repo := fx.contexts.WithUser("alice")

	globalID := models.GlobalSingletonID
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: globalID, Level: models.ContextLevelGlobal,
		Data: models.JSONMap{"org": "acme", "style": "tabs"},
	}))
	projectID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: projectID, Level: models.ContextLevelProject, ParentID: &globalID,
		Data: models.JSONMap{"style": "spaces", "ci": "github"},
	}))
	branchID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: branchID, Level: models.ContextLevelBranch, ParentID: &projectID,
		Data: models.JSONMap{"ticket": "PROJ-42"},
	}))

	resolved, err := fx.manager.Resolve(ctx, "alice", models.ContextLevelBranch, branchID)
	require.NoError(t, err)

	assert.Equal(t, "acme", resolved.Data["org"])
	assert.Equal(t, "spaces", resolved.Data["style"], "project overrides global")
	assert.Equal(t, "github", resolved.Data["ci"])
	assert.Equal(t, "PROJ-42", resolved.Data["ticket"])

	assert.Equal(t, models.ContextLevelGlobal, resolved.Provenance["org"])
	assert.Equal(t, models.ContextLevelProject, resolved.Provenance["style"])
	assert.Equal(t, models.ContextLevelBranch, resolved.Provenance["ticket"])
}

func TestResolveCachesPerUserVersion(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	_, branchID := fx.seedChain(t, "alice")

	first, err := fx.manager.Resolve(ctx, "alice", models.ContextLevelBranch, branchID)
	require.NoError(t, err)
	again, err := fx.manager.Resolve(ctx, "alice", models.ContextLevelBranch, branchID)
	require.NoError(t, err)
	assert.Same(t, first, again, "second resolve is served from cache")

	// Any context write bumps the user version and invalidates the cache
	_, err = fx.manager.Update(ctx, "alice", models.ContextLevelBranch, branchID,
		models.JSONMap{"fresh": true})
	require.NoError(t, err)

	rebuilt, err := fx.manager.Resolve(ctx, "alice", models.ContextLevelBranch, branchID)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.Equal(t, true, rebuilt.Data["fresh"])
}

func TestResolveMissingGlobalIsEmpty(t *testing.T) {
	fx := newDelegationFixture(t)

	resolved, err := fx.manager.Resolve(context.Background(), "alice",
		models.ContextLevelGlobal, models.GlobalSingletonID)
	require.NoError(t, err)
	assert.Empty(t, resolved.Data)
	assert.Empty(t, resolved.Provenance)
}

func TestResolveMissingLowerTierFails(t *testing.T) {
	fx := newDelegationFixture(t)

	_, err := fx.manager.Resolve(context.Background(), "alice",
		models.ContextLevelTask, uuid.New())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNotFound, models.CodeOf(err))
}

func TestUpdateMergesAndDeletesKeys(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	repo := fx.contexts.WithUser("alice")

	globalID := models.GlobalSingletonID
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: globalID, Level: models.ContextLevelGlobal,
		Data: models.JSONMap{"keep": 1, "drop": 2, "replace": 3},
	}))

	updated, err := fx.manager.Update(ctx, "alice", models.ContextLevelGlobal, globalID,
		models.JSONMap{"drop": nil, "replace": 4, "added": 5})
	require.NoError(t, err)

	assert.Equal(t, 1, updated.Data["keep"])
	assert.NotContains(t, updated.Data, "drop")
	assert.Equal(t, 4, updated.Data["replace"])
	assert.Equal(t, 5, updated.Data["added"])
}

func TestUpdateCreatesMissingGlobalRow(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()

	record, err := fx.manager.Update(ctx, "alice", models.ContextLevelGlobal,
		models.GlobalSingletonID, models.JSONMap{"first": "write"})
	require.NoError(t, err)
	assert.Equal(t, "write", record.Data["first"])

	stored, err := fx.contexts.WithUser("alice").Get(ctx, models.ContextLevelGlobal, models.GlobalSingletonID)
	require.NoError(t, err)
	assert.Equal(t, "write", stored.Data["first"])
}

func TestDeleteRefusesRowWithChildren(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	projectID, branchID := fx.seedChain(t, "alice")

	err := fx.manager.Delete(ctx, "alice", models.ContextLevelProject, projectID)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeConflict, models.CodeOf(err))

	// Bottom-up teardown succeeds
	require.NoError(t, fx.manager.Delete(ctx, "alice", models.ContextLevelBranch, branchID))
	require.NoError(t, fx.manager.Delete(ctx, "alice", models.ContextLevelProject, projectID))
}
