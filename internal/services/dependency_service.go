package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// DependencyService manages the task dependency graph. The graph is a DAG
// per user: every mutation re-checks acyclicity before it commits.
type DependencyService struct {
	deps   Deps
	logger observability.Logger
}

// NewDependencyService creates the dependency service
func NewDependencyService(deps Deps) *DependencyService {
	return &DependencyService{deps: deps, logger: deps.Logger.WithPrefix("dependencies")}
}

// Add records that taskID depends on dependsOn. Re-adding an existing edge
// is a no-op. Self edges and edges that would close a cycle are rejected.
func (s *DependencyService) Add(ctx context.Context, userID string, taskID, dependsOn uuid.UUID) error {
	if taskID == dependsOn {
		return models.NewValidationError("a task cannot depend on itself").
			WithDetail("task_id", taskID)
	}

	taskRepo := s.deps.Repos.Tasks.WithUser(userID)
	if _, err := taskRepo.Get(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("task", taskID.String())
		}
		return err
	}
	if _, err := taskRepo.Get(ctx, dependsOn); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("task", dependsOn.String())
		}
		return err
	}

	if s.deps.MaxDependencyEdges > 0 {
		total, err := s.deps.Repos.Dependencies.WithUser(userID).Count(ctx)
		if err != nil {
			return err
		}
		if total >= s.deps.MaxDependencyEdges {
			return models.NewValidationError("dependency graph is at its size limit").
				WithDetail("max_edges", s.deps.MaxDependencyEdges).
				WithDetail("edge_count", total)
		}
	}

	cycle, err := s.wouldCycle(ctx, userID, taskID, dependsOn)
	if err != nil {
		return err
	}
	if cycle != nil {
		return models.NewConflictError("dependency would create a cycle").
			WithDetail("task_id", taskID).
			WithDetail("depends_on", dependsOn).
			WithDetail("cycle", cycle)
	}

	if err := s.deps.Repos.Dependencies.WithUser(userID).Add(ctx, taskID, dependsOn); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil
		}
		return err
	}
	s.deps.Dispatcher.Publish(events.Event{
		Type:        events.EventDependencyAdded,
		EntityType:  "task",
		EntityID:    taskID,
		OwnerUserID: userID,
		Payload:     map[string]interface{}{"depends_on": dependsOn},
	})
	return nil
}

// Remove deletes one edge
func (s *DependencyService) Remove(ctx context.Context, userID string, taskID, dependsOn uuid.UUID) error {
	if err := s.deps.Repos.Dependencies.WithUser(userID).Remove(ctx, taskID, dependsOn); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("dependency", taskID.String()+" -> "+dependsOn.String())
		}
		return err
	}
	s.deps.Dispatcher.Publish(events.Event{
		Type:        events.EventDependencyRemoved,
		EntityType:  "task",
		EntityID:    taskID,
		OwnerUserID: userID,
		Payload:     map[string]interface{}{"depends_on": dependsOn},
	})
	return nil
}

// wouldCycle reports whether adding taskID -> dependsOn closes a cycle:
// it does when taskID is already reachable from dependsOn. Returns the
// offending path dependsOn..taskID, or nil.
func (s *DependencyService) wouldCycle(ctx context.Context, userID string, taskID, dependsOn uuid.UUID) ([]uuid.UUID, error) {
	edges, err := s.deps.Repos.Dependencies.WithUser(userID).ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var path []uuid.UUID
	visited := map[uuid.UUID]bool{}
	var walk func(node uuid.UUID) bool
	walk = func(node uuid.UUID) bool {
		if node == taskID {
			path = append(path, node)
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, pred := range edges[node] {
			if walk(pred) {
				path = append([]uuid.UUID{node}, path...)
				return true
			}
		}
		return false
	}
	if walk(dependsOn) {
		return path, nil
	}
	return nil, nil
}

// ListFor returns the direct predecessors of taskID
func (s *DependencyService) ListFor(ctx context.Context, userID string, taskID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.deps.Repos.Tasks.WithUser(userID).Get(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError("task", taskID.String())
		}
		return nil, err
	}
	return s.deps.Repos.Dependencies.WithUser(userID).ListForTask(ctx, taskID)
}

// Clear removes every edge where taskID is the dependent
func (s *DependencyService) Clear(ctx context.Context, userID string, taskID uuid.UUID) error {
	if _, err := s.deps.Repos.Tasks.WithUser(userID).Get(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError("task", taskID.String())
		}
		return err
	}
	if err := s.deps.Repos.Dependencies.WithUser(userID).Clear(ctx, taskID); err != nil {
		return err
	}
	s.deps.Dispatcher.Publish(events.Event{
		Type:        events.EventDependencyRemoved,
		EntityType:  "task",
		EntityID:    taskID,
		OwnerUserID: userID,
		Payload:     map[string]interface{}{"cleared": true},
	})
	return nil
}

// BlockingTasks returns the transitive set of non-terminal predecessors
// that currently keep taskID from starting
func (s *DependencyService) BlockingTasks(ctx context.Context, userID string, taskID uuid.UUID) ([]uuid.UUID, error) {
	edges, err := s.deps.Repos.Dependencies.WithUser(userID).ListAll(ctx)
	if err != nil {
		return nil, err
	}
	taskRepo := s.deps.Repos.Tasks.WithUser(userID)

	var blocking []uuid.UUID
	visited := map[uuid.UUID]bool{}
	queue := append([]uuid.UUID{}, edges[taskID]...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node] {
			continue
		}
		visited[node] = true

		pred, err := taskRepo.Get(ctx, node)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !pred.Status.IsTerminal() {
			blocking = append(blocking, node)
		}
		queue = append(queue, edges[node]...)
	}
	return blocking, nil
}

// Annotate fills the computed dependency fields on a task: its direct
// predecessors, whether it can start, and who blocks it
func (s *DependencyService) Annotate(ctx context.Context, userID string, task *models.Task) error {
	direct, err := s.deps.Repos.Dependencies.WithUser(userID).ListForTask(ctx, task.ID)
	if err != nil {
		return err
	}
	task.DependsOn = direct

	blocking, err := s.BlockingTasks(ctx, userID, task.ID)
	if err != nil {
		return err
	}
	task.BlockingTaskIDs = blocking
	task.IsBlocked = len(blocking) > 0
	task.CanStart = !task.IsBlocked && !task.Status.IsTerminal()
	return nil
}

// AnnotateAll fills the computed fields for a task list with one graph
// read instead of one per task
func (s *DependencyService) AnnotateAll(ctx context.Context, userID string, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	edges, err := s.deps.Repos.Dependencies.WithUser(userID).ListAll(ctx)
	if err != nil {
		return err
	}

	status := map[uuid.UUID]models.TaskStatus{}
	for _, task := range tasks {
		status[task.ID] = task.Status
	}
	taskRepo := s.deps.Repos.Tasks.WithUser(userID)
	statusOf := func(id uuid.UUID) (models.TaskStatus, bool) {
		if st, ok := status[id]; ok {
			return st, true
		}
		pred, err := taskRepo.Get(ctx, id)
		if err != nil {
			status[id] = ""
			return "", false
		}
		status[id] = pred.Status
		return pred.Status, true
	}

	for _, task := range tasks {
		task.DependsOn = edges[task.ID]

		var blocking []uuid.UUID
		visited := map[uuid.UUID]bool{}
		queue := append([]uuid.UUID{}, edges[task.ID]...)
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			if visited[node] {
				continue
			}
			visited[node] = true
			if st, ok := statusOf(node); ok && !st.IsTerminal() {
				blocking = append(blocking, node)
			}
			queue = append(queue, edges[node]...)
		}
		task.BlockingTaskIDs = blocking
		task.IsBlocked = len(blocking) > 0
		task.CanStart = !task.IsBlocked && !task.Status.IsTerminal()
	}
	return nil
}

// Graph returns the user's full edge set plus summary figures
func (s *DependencyService) Graph(ctx context.Context, userID string) (map[string]interface{}, error) {
	edges, err := s.deps.Repos.Dependencies.WithUser(userID).ListAll(ctx)
	if err != nil {
		return nil, err
	}
	edgeCount := 0
	flat := map[string][]uuid.UUID{}
	for taskID, preds := range edges {
		flat[taskID.String()] = preds
		edgeCount += len(preds)
	}
	return map[string]interface{}{
		"edges":      flat,
		"node_count": len(edges),
		"edge_count": edgeCount,
	}, nil
}
