// Package core implements the four-tier context engine: the hierarchy
// rules, inheritance resolution with caching, and asynchronous delegation.
package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// ContextManager owns the context hierarchy. Every operation is scoped to
// one user; the manager never reads or writes another user's rows.
type ContextManager struct {
	repos      *repository.Repositories
	cache      *InheritanceCache
	dispatcher *events.Dispatcher
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewContextManager wires the context engine
func NewContextManager(
	repos *repository.Repositories,
	cache *InheritanceCache,
	dispatcher *events.Dispatcher,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *ContextManager {
	return &ContextManager{
		repos:      repos,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger.WithPrefix("context"),
		metrics:    metrics,
	}
}

// Cache exposes the inheritance cache so entity services can invalidate on
// structural changes (task moves, deletes)
func (m *ContextManager) Cache() *InheritanceCache { return m.cache }

// NormalizeTarget maps a raw (level, id) pair onto the stored key. At the
// global tier the "global" alias, the singleton UUID and an empty id all
// name the user's single global row.
func (m *ContextManager) NormalizeTarget(level models.ContextLevel, rawID string) (uuid.UUID, *models.AppError) {
	if level == models.ContextLevelGlobal {
		if strings.TrimSpace(rawID) == "" || models.IsGlobalAlias(rawID) {
			return models.GlobalSingletonID, nil
		}
		return uuid.Nil, models.NewValidationError("global context is addressed as %q or %s",
			models.GlobalContextAlias, models.GlobalSingletonID).
			WithDetail("field", "context_id").
			WithDetail("value", rawID)
	}
	if models.IsGlobalAlias(rawID) {
		return uuid.Nil, models.NewValidationError("the global alias is only valid at the global level").
			WithDetail("field", "context_id").
			WithDetail("level", level)
	}
	return models.NormalizeIDField("context_id", rawID)
}

// parentOf verifies the owning entity exists and returns the parent context
// id for (level, id). The context id of a non-global row equals the owning
// entity's id, so the parent is read off the entity tree.
func (m *ContextManager) parentOf(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID) (*uuid.UUID, error) {
	switch level {
	case models.ContextLevelGlobal:
		return nil, nil
	case models.ContextLevelProject:
		if _, err := m.repos.Projects.WithUser(userID).Get(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, models.NewNotFoundError("project", id.String())
			}
			return nil, err
		}
		parent := models.GlobalSingletonID
		return &parent, nil
	case models.ContextLevelBranch:
		branch, err := m.repos.Branches.WithUser(userID).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, models.NewNotFoundError("branch", id.String())
			}
			return nil, err
		}
		parent := branch.ProjectID
		return &parent, nil
	case models.ContextLevelTask:
		task, err := m.repos.Tasks.WithUser(userID).Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, models.NewNotFoundError("task", id.String())
			}
			return nil, err
		}
		parent := task.BranchID
		return &parent, nil
	default:
		return nil, models.NewValidationError("unknown context level %q", level)
	}
}

// ensureParents materializes every missing ancestor row above (level, id),
// top-down, with empty data. Concurrent creators racing on the same
// ancestor are harmless: the loser's unique violation is swallowed.
func (m *ContextManager) ensureParents(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID) error {
	parentLevel, ok := level.Parent()
	if !ok {
		return nil
	}
	parentID, err := m.parentOf(ctx, userID, level, id)
	if err != nil {
		return err
	}

	contexts := m.repos.Contexts.WithUser(userID)
	if _, err := contexts.Get(ctx, parentLevel, *parentID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if err := m.ensureParents(ctx, userID, parentLevel, *parentID); err != nil {
		return err
	}
	grandparent, err := m.parentOf(ctx, userID, parentLevel, *parentID)
	if err != nil {
		return err
	}
	err = contexts.Create(ctx, &models.Context{
		ID:       *parentID,
		Level:    parentLevel,
		ParentID: grandparent,
		Data:     models.JSONMap{},
	})
	if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
		return err
	}
	return nil
}

// Create writes a context row for (level, id), materializing any missing
// ancestors first. A nil data payload creates an empty context.
func (m *ContextManager) Create(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID, data, metadata models.JSONMap) (*models.Context, error) {
	parentID, err := m.parentOf(ctx, userID, level, id)
	if err != nil {
		return nil, err
	}
	if err := m.ensureParents(ctx, userID, level, id); err != nil {
		return nil, err
	}
	if data == nil {
		data = models.JSONMap{}
	}

	record := &models.Context{
		ID:       id,
		Level:    level,
		ParentID: parentID,
		Data:     data,
		Metadata: metadata,
	}
	if err := m.repos.Contexts.WithUser(userID).Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, models.NewConflictError("%s context already exists for %s", level, id)
		}
		return nil, err
	}

	m.afterWrite(userID, level, id)
	return record, nil
}

// Get returns the stored row, optionally with the resolved view attached
func (m *ContextManager) Get(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID, includeInherited bool) (*models.Context, *models.ResolvedContext, error) {
	record, err := m.repos.Contexts.WithUser(userID).Get(ctx, level, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, models.NewNotFoundError(string(level)+" context", id.String())
		}
		return nil, nil, err
	}
	if !includeInherited {
		return record, nil, nil
	}
	resolved, err := m.Resolve(ctx, userID, level, id)
	if err != nil {
		return nil, nil, err
	}
	return record, resolved, nil
}

// Update merges data into the row last-writer-wins per top-level key: keys
// present in data overwrite, an explicit null deletes, absent keys keep
// their stored value. A missing row is created on the spot, so first write
// needs no prior create call.
func (m *ContextManager) Update(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID, data models.JSONMap) (*models.Context, error) {
	contexts := m.repos.Contexts.WithUser(userID)
	record, err := contexts.Get(ctx, level, id)
	if errors.Is(err, repository.ErrNotFound) {
		return m.Create(ctx, userID, level, id, data, nil)
	}
	if err != nil {
		return nil, err
	}

	next := models.JSONMap{}
	for k, v := range record.Data {
		next[k] = v
	}
	for k, v := range data {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	record.Data = next

	if err := contexts.Update(ctx, record); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError(string(level)+" context", id.String())
		}
		return nil, err
	}

	m.afterWrite(userID, level, id)
	return record, nil
}

// Delete removes one context row. Rows with live descendants refuse to go:
// the hierarchy is torn down bottom-up.
func (m *ContextManager) Delete(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID) error {
	contexts := m.repos.Contexts.WithUser(userID)
	hasChildren, err := contexts.HasChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return models.NewConflictError("%s context %s still has child contexts", level, id).
			WithDetail("hint", "delete descendant contexts first")
	}
	if err := contexts.Delete(ctx, level, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError(string(level)+" context", id.String())
		}
		return err
	}
	m.afterWrite(userID, level, id)
	return nil
}

// Resolve computes the effective context for (level, id): the ancestor
// chain is folded root-first with deep-merge, so lower tiers override
// higher ones key by key. Results are memoized per user version; any
// context write invalidates the whole user's cache.
func (m *ContextManager) Resolve(ctx context.Context, userID string, level models.ContextLevel, id uuid.UUID) (*models.ResolvedContext, error) {
	if cached, ok := m.cache.Get(level, id.String(), userID); ok {
		m.metrics.IncrementCounter("context_resolve_cache_hits", 1, nil)
		return cached, nil
	}
	m.metrics.IncrementCounter("context_resolve_cache_misses", 1, nil)

	contexts := m.repos.Contexts.WithUser(userID)
	target, err := contexts.Get(ctx, level, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// A user who never wrote global still has an effective (empty)
		// global context. Every other tier must exist before resolving.
		if level != models.ContextLevelGlobal {
			return nil, models.NewNotFoundError(string(level)+" context", id.String())
		}
		target = &models.Context{ID: id, Level: level, Data: models.JSONMap{}}
	}

	chain, err := contexts.FindAncestors(ctx, level, id)
	if err != nil {
		return nil, err
	}

	acc := models.JSONMap{}
	provenance := map[string]models.ContextLevel{}
	for _, layer := range chain {
		acc = mergeLayer(acc, provenance, layer)
	}
	acc = mergeLayer(acc, provenance, target)

	resolved := &models.ResolvedContext{
		ID:         id,
		Level:      level,
		Data:       acc,
		Provenance: provenance,
		ResolvedAt: time.Now().UTC(),
	}
	m.cache.Put(level, id.String(), userID, resolved)
	return resolved, nil
}

// Delegate queues a payload for asynchronous promotion from (sourceLevel,
// sourceID) to an ancestor tier. The row is applied later, in creation
// order, by the per-user delegation worker.
func (m *ContextManager) Delegate(ctx context.Context, userID string, sourceLevel models.ContextLevel, sourceID uuid.UUID, targetLevel models.ContextLevel, payload models.JSONMap) (*models.Delegation, error) {
	if targetLevel.Rank() >= sourceLevel.Rank() {
		return nil, models.NewValidationError("delegation target %q is not above source %q", targetLevel, sourceLevel).
			WithDetail("source_level", sourceLevel).
			WithDetail("target_level", targetLevel)
	}
	if len(payload) == 0 {
		return nil, models.NewMissingFieldError("delegate_data")
	}

	// The source row must exist; delegating from an unwritten context is
	// almost always a caller bug.
	if _, err := m.repos.Contexts.WithUser(userID).Get(ctx, sourceLevel, sourceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError(string(sourceLevel)+" context", sourceID.String())
		}
		return nil, err
	}

	delegation := &models.Delegation{
		ID:          uuid.New(),
		SourceLevel: sourceLevel,
		SourceID:    sourceID,
		TargetLevel: targetLevel,
		Payload:     payload,
		Status:      models.DelegationStatusPending,
	}
	if err := m.repos.Delegations.WithUser(userID).Create(ctx, delegation); err != nil {
		return nil, err
	}

	m.logger.Info("Delegation queued", map[string]interface{}{
		"delegation_id": delegation.ID,
		"source_level":  sourceLevel,
		"target_level":  targetLevel,
	})
	return delegation, nil
}

// resolveDelegationTarget finds the target row id for a delegation by
// walking the source's materialized ancestor chain
func (m *ContextManager) resolveDelegationTarget(ctx context.Context, userID string, d *models.Delegation) (uuid.UUID, error) {
	if d.TargetLevel == models.ContextLevelGlobal {
		return models.GlobalSingletonID, nil
	}
	chain, err := m.repos.Contexts.WithUser(userID).FindAncestors(ctx, d.SourceLevel, d.SourceID)
	if err != nil {
		return uuid.Nil, err
	}
	for _, layer := range chain {
		if layer.Level == d.TargetLevel {
			return layer.ID, nil
		}
	}
	return uuid.Nil, models.NewNotFoundError(string(d.TargetLevel)+" ancestor context", d.SourceID.String())
}

// applyDelegation merges a delegation payload into its target row. Called
// by the worker only; the same merge rules as Update apply.
func (m *ContextManager) applyDelegation(ctx context.Context, userID string, d *models.Delegation) error {
	targetID, err := m.resolveDelegationTarget(ctx, userID, d)
	if err != nil {
		return err
	}
	if _, err := m.Update(ctx, userID, d.TargetLevel, targetID, d.Payload); err != nil {
		return err
	}
	return nil
}

func (m *ContextManager) afterWrite(userID string, level models.ContextLevel, id uuid.UUID) {
	m.cache.Bump(userID)
	m.dispatcher.Publish(events.Event{
		Type:        events.EventContextUpdated,
		EntityType:  "context",
		EntityID:    id,
		OwnerUserID: userID,
		Payload:     map[string]interface{}{"level": string(level)},
	})
}
