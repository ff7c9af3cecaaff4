package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// In-memory stand-ins for the graph tests. One user, no transactions.

type fakeTaskRepo struct {
	tasks map[uuid.UUID]*models.Task
}

func (r *fakeTaskRepo) WithUser(string) repository.TaskRepository { return r }
func (r *fakeTaskRepo) WithTx(*sqlx.Tx) repository.TaskRepository { return r }

func (r *fakeTaskRepo) Create(_ context.Context, task *models.Task) error {
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) Get(_ context.Context, id uuid.UUID) (*models.Task, error) {
	task, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return task, nil
}

func (r *fakeTaskRepo) GetTasksByBranch(_ context.Context, branchID uuid.UUID) ([]*models.Task, error) {
	var out []*models.Task
	for _, task := range r.tasks {
		if task.BranchID == branchID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *models.Task) error {
	if _, ok := r.tasks[task.ID]; !ok {
		return repository.ErrNotFound
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

type fakeDependencyRepo struct {
	edges map[uuid.UUID][]uuid.UUID
}

func (r *fakeDependencyRepo) WithUser(string) repository.DependencyRepository { return r }
func (r *fakeDependencyRepo) WithTx(*sqlx.Tx) repository.DependencyRepository { return r }

func (r *fakeDependencyRepo) Add(_ context.Context, taskID, dependsOn uuid.UUID) error {
	for _, existing := range r.edges[taskID] {
		if existing == dependsOn {
			return repository.ErrAlreadyExists
		}
	}
	r.edges[taskID] = append(r.edges[taskID], dependsOn)
	return nil
}

func (r *fakeDependencyRepo) Remove(_ context.Context, taskID, dependsOn uuid.UUID) error {
	preds := r.edges[taskID]
	for i, existing := range preds {
		if existing == dependsOn {
			r.edges[taskID] = append(preds[:i], preds[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeDependencyRepo) Clear(_ context.Context, taskID uuid.UUID) error {
	delete(r.edges, taskID)
	return nil
}

func (r *fakeDependencyRepo) ListForTask(_ context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	return r.edges[taskID], nil
}

func (r *fakeDependencyRepo) ListDependents(_ context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for succ, preds := range r.edges {
		for _, pred := range preds {
			if pred == taskID {
				out = append(out, succ)
			}
		}
	}
	return out, nil
}

func (r *fakeDependencyRepo) ListAll(_ context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	return r.edges, nil
}

func (r *fakeDependencyRepo) Count(_ context.Context) (int, error) {
	n := 0
	for _, preds := range r.edges {
		n += len(preds)
	}
	return n, nil
}

type graphFixture struct {
	service *DependencyService
	tasks   *fakeTaskRepo
	edges   *fakeDependencyRepo
}

func newGraphFixture() *graphFixture {
	tasks := &fakeTaskRepo{tasks: map[uuid.UUID]*models.Task{}}
	edges := &fakeDependencyRepo{edges: map[uuid.UUID][]uuid.UUID{}}
	logger := observability.NewNoopLogger()
	deps := Deps{
		Repos:      &repository.Repositories{Tasks: tasks, Dependencies: edges},
		Dispatcher: events.NewDispatcher(logger, observability.NewNoopMetrics()),
		Logger:     logger,
		Metrics:    observability.NewNoopMetrics(),
	}
	return &graphFixture{service: NewDependencyService(deps), tasks: tasks, edges: edges}
}

func (f *graphFixture) addTask(status models.TaskStatus) uuid.UUID {
	task := &models.Task{ID: uuid.New(), Title: "t", Status: status}
	f.tasks.tasks[task.ID] = task
	return task.ID
}

func TestDependencyAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("records the edge", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)
		b := f.addTask(models.TaskStatusTodo)

		require.NoError(t, f.service.Add(ctx, "alice", a, b))
		assert.Equal(t, []uuid.UUID{b}, f.edges.edges[a])
	})

	t.Run("re-adding is a no-op", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)
		b := f.addTask(models.TaskStatusTodo)

		require.NoError(t, f.service.Add(ctx, "alice", a, b))
		require.NoError(t, f.service.Add(ctx, "alice", a, b))
		assert.Len(t, f.edges.edges[a], 1)
	})

	t.Run("self edge rejected", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)

		err := f.service.Add(ctx, "alice", a, a)
		require.Error(t, err)
		assert.Equal(t, models.ErrCodeValidation, models.CodeOf(err))
	})

	t.Run("unknown task rejected", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)

		err := f.service.Add(ctx, "alice", a, uuid.New())
		require.Error(t, err)
		assert.Equal(t, models.ErrCodeNotFound, models.CodeOf(err))
	})

	t.Run("two-node cycle rejected", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)
		b := f.addTask(models.TaskStatusTodo)

		require.NoError(t, f.service.Add(ctx, "alice", a, b))
		err := f.service.Add(ctx, "alice", b, a)
		require.Error(t, err)
		appErr, ok := models.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrCodeConflict, appErr.Code)
		assert.NotEmpty(t, appErr.Details["cycle"])
	})

	t.Run("long cycle rejected", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)
		b := f.addTask(models.TaskStatusTodo)
		c := f.addTask(models.TaskStatusTodo)
		d := f.addTask(models.TaskStatusTodo)

		// a -> b -> c -> d, then d -> a would close the loop
		require.NoError(t, f.service.Add(ctx, "alice", a, b))
		require.NoError(t, f.service.Add(ctx, "alice", b, c))
		require.NoError(t, f.service.Add(ctx, "alice", c, d))
		err := f.service.Add(ctx, "alice", d, a)
		require.Error(t, err)
		assert.Equal(t, models.ErrCodeConflict, models.CodeOf(err))
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		f := newGraphFixture()
		a := f.addTask(models.TaskStatusTodo)
		b := f.addTask(models.TaskStatusTodo)
		c := f.addTask(models.TaskStatusTodo)
		d := f.addTask(models.TaskStatusTodo)

		require.NoError(t, f.service.Add(ctx, "alice", a, b))
		require.NoError(t, f.service.Add(ctx, "alice", a, c))
		require.NoError(t, f.service.Add(ctx, "alice", b, d))
		require.NoError(t, f.service.Add(ctx, "alice", c, d))
	})

	t.Run("graph size limit enforced", func(t *testing.T) {
		f := newGraphFixture()
		f.service.deps.MaxDependencyEdges = 1
		a := f.addTask(models.TaskStatusTodo)
		b := f.addTask(models.TaskStatusTodo)
		c := f.addTask(models.TaskStatusTodo)

		require.NoError(t, f.service.Add(ctx, "alice", a, b))

		err := f.service.Add(ctx, "alice", a, c)
		require.Error(t, err)
		appErr, ok := models.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrCodeValidation, appErr.Code)
		assert.Equal(t, 1, appErr.Details["max_edges"])

		// Freeing an edge makes room again
		require.NoError(t, f.service.Remove(ctx, "alice", a, b))
		require.NoError(t, f.service.Add(ctx, "alice", a, c))
	})
}

func TestDependencyRemove(t *testing.T) {
	ctx := context.Background()
	f := newGraphFixture()
	a := f.addTask(models.TaskStatusTodo)
	b := f.addTask(models.TaskStatusTodo)

	require.NoError(t, f.service.Add(ctx, "alice", a, b))
	require.NoError(t, f.service.Remove(ctx, "alice", a, b))

	err := f.service.Remove(ctx, "alice", a, b)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNotFound, models.CodeOf(err))
}

func TestBlockingTasks(t *testing.T) {
	ctx := context.Background()
	f := newGraphFixture()
	done := f.addTask(models.TaskStatusDone)
	open := f.addTask(models.TaskStatusInProgress)
	upstream := f.addTask(models.TaskStatusTodo)
	target := f.addTask(models.TaskStatusTodo)

	// target depends on done and open; open depends on upstream
	require.NoError(t, f.service.Add(ctx, "alice", target, done))
	require.NoError(t, f.service.Add(ctx, "alice", target, open))
	require.NoError(t, f.service.Add(ctx, "alice", open, upstream))

	blocking, err := f.service.BlockingTasks(ctx, "alice", target)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{open, upstream}, blocking)
}

func TestAnnotate(t *testing.T) {
	ctx := context.Background()
	f := newGraphFixture()
	done := f.addTask(models.TaskStatusDone)
	target := f.addTask(models.TaskStatusTodo)
	require.NoError(t, f.service.Add(ctx, "alice", target, done))

	task := f.tasks.tasks[target]
	require.NoError(t, f.service.Annotate(ctx, "alice", task))
	assert.Equal(t, []uuid.UUID{done}, task.DependsOn)
	assert.False(t, task.IsBlocked)
	assert.True(t, task.CanStart)
	assert.Empty(t, task.BlockingTaskIDs)

	// A cancelled task never starts regardless of its graph
	cancelled := f.addTask(models.TaskStatusCancelled)
	task = f.tasks.tasks[cancelled]
	require.NoError(t, f.service.Annotate(ctx, "alice", task))
	assert.False(t, task.CanStart)
}

func TestAnnotateAll(t *testing.T) {
	ctx := context.Background()
	f := newGraphFixture()
	blocker := f.addTask(models.TaskStatusInProgress)
	blocked := f.addTask(models.TaskStatusTodo)
	free := f.addTask(models.TaskStatusTodo)
	require.NoError(t, f.service.Add(ctx, "alice", blocked, blocker))

	list := []*models.Task{f.tasks.tasks[blocked], f.tasks.tasks[free]}
	require.NoError(t, f.service.AnnotateAll(ctx, "alice", list))

	assert.True(t, list[0].IsBlocked)
	assert.False(t, list[0].CanStart)
	assert.Equal(t, []uuid.UUID{blocker}, list[0].BlockingTaskIDs)

	assert.False(t, list[1].IsBlocked)
	assert.True(t, list[1].CanStart)
}

func TestGraph(t *testing.T) {
	ctx := context.Background()
	f := newGraphFixture()
	a := f.addTask(models.TaskStatusTodo)
	b := f.addTask(models.TaskStatusTodo)
	c := f.addTask(models.TaskStatusTodo)
	require.NoError(t, f.service.Add(ctx, "alice", a, b))
	require.NoError(t, f.service.Add(ctx, "alice", a, c))

	graph, err := f.service.Graph(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, graph["node_count"])
	assert.Equal(t, 2, graph["edge_count"])
}
