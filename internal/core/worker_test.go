package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// fakeContextRepo keeps context rows in memory per user, keyed by id the
// same way the table is. WithUser rebinds a shallow copy, matching the
// scoping contract of the real repository.
type fakeContextRepo struct {
	mu   *sync.Mutex
	rows map[string]map[uuid.UUID]*models.Context
	user string
}

func newFakeContextRepo() *fakeContextRepo {
	return &fakeContextRepo{mu: &sync.Mutex{}, rows: map[string]map[uuid.UUID]*models.Context{}}
}

func (f *fakeContextRepo) WithUser(userID string) repository.ContextRepository {
	clone := *f
	clone.user = userID
	return &clone
}

func (f *fakeContextRepo) WithTx(tx *sqlx.Tx) repository.ContextRepository { return f }

func (f *fakeContextRepo) userRows() (map[uuid.UUID]*models.Context, error) {
	if f.user == "" {
		return nil, repository.ErrUnbound
	}
	if f.rows[f.user] == nil {
		f.rows[f.user] = map[uuid.UUID]*models.Context{}
	}
	return f.rows[f.user], nil
}

func (f *fakeContextRepo) Create(ctx context.Context, record *models.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return err
	}
	if _, ok := rows[record.ID]; ok {
		return repository.ErrAlreadyExists
	}
	stored := *record
	stored.UserID = f.user
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	rows[record.ID] = &stored
	return nil
}

func (f *fakeContextRepo) Get(ctx context.Context, level models.ContextLevel, id uuid.UUID) (*models.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return nil, err
	}
	row, ok := rows[id]
	if !ok || row.Level != level {
		return nil, repository.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeContextRepo) Update(ctx context.Context, record *models.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return err
	}
	if _, ok := rows[record.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *record
	stored.UserID = f.user
	stored.UpdatedAt = time.Now().UTC()
	rows[record.ID] = &stored
	return nil
}

func (f *fakeContextRepo) Delete(ctx context.Context, level models.ContextLevel, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return err
	}
	row, ok := rows[id]
	if !ok || row.Level != level {
		return repository.ErrNotFound
	}
	delete(rows, id)
	return nil
}

func (f *fakeContextRepo) DeleteSubtree(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return err
	}
	doomed := []uuid.UUID{id}
	for len(doomed) > 0 {
		next := doomed[0]
		doomed = doomed[1:]
		delete(rows, next)
		for childID, row := range rows {
			if row.ParentID != nil && *row.ParentID == next {
				doomed = append(doomed, childID)
			}
		}
	}
	return nil
}

func (f *fakeContextRepo) FindAncestors(ctx context.Context, level models.ContextLevel, id uuid.UUID) ([]*models.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return nil, err
	}
	var chain []*models.Context
	row, ok := rows[id]
	if !ok {
		return chain, nil
	}
	parent := row.ParentID
	for parent != nil {
		ancestor, ok := rows[*parent]
		if !ok {
			break
		}
		copied := *ancestor
		chain = append([]*models.Context{&copied}, chain...)
		parent = ancestor.ParentID
	}
	return chain, nil
}

func (f *fakeContextRepo) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.userRows()
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.ParentID != nil && *row.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

// fakeDelegationRepo keeps delegation rows in creation order so the
// pending queue drains oldest-first.
type fakeDelegationRepo struct {
	mu   *sync.Mutex
	rows *[]*models.Delegation
	user string
}

func newFakeDelegationRepo() *fakeDelegationRepo {
	rows := []*models.Delegation{}
	return &fakeDelegationRepo{mu: &sync.Mutex{}, rows: &rows}
}

func (f *fakeDelegationRepo) WithUser(userID string) repository.DelegationRepository {
	clone := *f
	clone.user = userID
	return &clone
}

func (f *fakeDelegationRepo) WithTx(tx *sqlx.Tx) repository.DelegationRepository { return f }

func (f *fakeDelegationRepo) Create(ctx context.Context, delegation *models.Delegation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == "" {
		return repository.ErrUnbound
	}
	delegation.UserID = f.user
	delegation.CreatedAt = time.Now().UTC()
	*f.rows = append(*f.rows, delegation)
	return nil
}

func (f *fakeDelegationRepo) Get(ctx context.Context, id uuid.UUID) (*models.Delegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range *f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDelegationRepo) ListPending(ctx context.Context, userID string, limit int) ([]*models.Delegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []*models.Delegation
	for _, row := range *f.rows {
		if row.UserID == userID && row.Status == models.DelegationStatusPending {
			pending = append(pending, row)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (f *fakeDelegationRepo) ListPendingUsers(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var users []string
	for _, row := range *f.rows {
		if row.Status == models.DelegationStatusPending && !seen[row.UserID] {
			seen[row.UserID] = true
			users = append(users, row.UserID)
		}
	}
	return users, nil
}

func (f *fakeDelegationRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range *f.rows {
		if row.ID == id {
			now := time.Now().UTC()
			row.Status = models.DelegationStatusProcessed
			row.ProcessedAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeDelegationRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, final bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range *f.rows {
		if row.ID == id {
			row.Attempts = attempts
			row.LastError = lastErr
			if final {
				row.Status = models.DelegationStatusFailed
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

type delegationFixture struct {
	manager     *ContextManager
	worker      *DelegationWorker
	contexts    *fakeContextRepo
	delegations *fakeDelegationRepo
}

func newDelegationFixture(t *testing.T) *delegationFixture {
	t.Helper()
	contexts := newFakeContextRepo()
	delegations := newFakeDelegationRepo()
	repos := &repository.Repositories{Contexts: contexts, Delegations: delegations}

	cache, err := NewInheritanceCache(64)
	require.NoError(t, err)

	logger := observability.NewNoopLogger()
	metrics := observability.NewNoopMetrics()
	dispatcher := events.NewDispatcher(logger, metrics)
	manager := NewContextManager(repos, cache, dispatcher, logger, metrics)
	worker := NewDelegationWorker(manager, repos, logger, metrics, time.Minute, 3)

	return &delegationFixture{
		manager:     manager,
		worker:      worker,
		contexts:    contexts,
		delegations: delegations,
	}
}

// seedChain materializes a global -> project -> branch context chain for
// one user and returns the branch id.
func (fx *delegationFixture) seedChain(t *testing.T, userID string) (projectID, branchID uuid.UUID) {
	t.Helper()
	repo := fx.contexts.WithUser(userID)
	ctx := context.Background()

	globalID := models.GlobalSingletonID
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: globalID, Level: models.ContextLevelGlobal, Data: models.JSONMap{},
	}))

	projectID = uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: projectID, Level: models.ContextLevelProject, ParentID: &globalID, Data: models.JSONMap{},
	}))

	branchID = uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Context{
		ID: branchID, Level: models.ContextLevelBranch, ParentID: &projectID, Data: models.JSONMap{},
	}))
	return projectID, branchID
}

func TestDelegateRejectsBadRequests(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	_, branchID := fx.seedChain(t, "alice")

	// Target must be strictly above the source
	_, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelTask, models.JSONMap{"k": "v"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeValidation, models.CodeOf(err))

	_, err = fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelBranch, models.JSONMap{"k": "v"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeValidation, models.CodeOf(err))

	// Empty payload has nothing to promote
	_, err = fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelGlobal, models.JSONMap{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeMissingField, models.CodeOf(err))

	// Delegating from a context that was never written is refused
	_, err = fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, uuid.New(),
		models.ContextLevelGlobal, models.JSONMap{"k": "v"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNotFound, models.CodeOf(err))
}

func TestDelegateQueuesPendingRow(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	_, branchID := fx.seedChain(t, "alice")

	d, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelGlobal, models.JSONMap{"pattern": "retry-with-jitter"})
	require.NoError(t, err)
	assert.Equal(t, models.DelegationStatusPending, d.Status)

	stored, err := fx.delegations.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)
	assert.Equal(t, models.DelegationStatusPending, stored.Status)
}

func TestWorkerAppliesDelegationsInOrder(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	projectID, branchID := fx.seedChain(t, "alice")

	first, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelGlobal, models.JSONMap{"winner": "first"})
	require.NoError(t, err)
	second, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelGlobal, models.JSONMap{"winner": "second"})
	require.NoError(t, err)
	third, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelProject, models.JSONMap{"promoted": true})
	require.NoError(t, err)

	fx.worker.drainUser(ctx, "alice")

	global, err := fx.contexts.WithUser("alice").Get(ctx, models.ContextLevelGlobal, models.GlobalSingletonID)
	require.NoError(t, err)
	assert.Equal(t, "second", global.Data["winner"], "later delegation overwrites the earlier one")

	project, err := fx.contexts.WithUser("alice").Get(ctx, models.ContextLevelProject, projectID)
	require.NoError(t, err)
	assert.Equal(t, true, project.Data["promoted"])

	for _, id := range []uuid.UUID{first.ID, second.ID, third.ID} {
		row, err := fx.delegations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.DelegationStatusProcessed, row.Status)
		assert.NotNil(t, row.ProcessedAt)
	}
}

func TestWorkerMaterializesMissingGlobalRow(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	_, branchID := fx.seedChain(t, "alice")

	// Drop the seeded global row; the first delegation should recreate it
	require.NoError(t, fx.contexts.WithUser("alice").Delete(ctx, models.ContextLevelGlobal, models.GlobalSingletonID))

	_, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelGlobal, models.JSONMap{"shared": "knowledge"})
	require.NoError(t, err)

	fx.worker.drainUser(ctx, "alice")

	global, err := fx.contexts.WithUser("alice").Get(ctx, models.ContextLevelGlobal, models.GlobalSingletonID)
	require.NoError(t, err)
	assert.Equal(t, "knowledge", global.Data["shared"])
}

func TestWorkerParksUnresolvableRowAndHaltsQueue(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	_, branchID := fx.seedChain(t, "alice")

	// Orphan the branch so no project ancestor can be resolved
	fx.contexts.mu.Lock()
	fx.contexts.rows["alice"][branchID].ParentID = nil
	fx.contexts.mu.Unlock()

	doomed, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelProject, models.JSONMap{"never": "lands"})
	require.NoError(t, err)
	blocked, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, branchID,
		models.ContextLevelGlobal, models.JSONMap{"still": "queued"})
	require.NoError(t, err)

	fx.worker.drainUser(ctx, "alice")

	failed, err := fx.delegations.Get(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DelegationStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts, "missing target is permanent, no retries")
	assert.NotEmpty(t, failed.LastError)

	// Rows behind the failed one must not jump the queue
	waiting, err := fx.delegations.Get(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DelegationStatusPending, waiting.Status)
}

func TestWorkerIsolatesUsers(t *testing.T) {
	fx := newDelegationFixture(t)
	ctx := context.Background()
	_, aliceBranch := fx.seedChain(t, "alice")
	_, bobBranch := fx.seedChain(t, "bob")

	_, err := fx.manager.Delegate(ctx, "alice", models.ContextLevelBranch, aliceBranch,
		models.ContextLevelGlobal, models.JSONMap{"owner": "alice"})
	require.NoError(t, err)
	_, err = fx.manager.Delegate(ctx, "bob", models.ContextLevelBranch, bobBranch,
		models.ContextLevelGlobal, models.JSONMap{"owner": "bob"})
	require.NoError(t, err)

	fx.worker.drainUser(ctx, "alice")

	aliceGlobal, err := fx.contexts.WithUser("alice").Get(ctx, models.ContextLevelGlobal, models.GlobalSingletonID)
	require.NoError(t, err)
	assert.Equal(t, "alice", aliceGlobal.Data["owner"])

	bobGlobal, err := fx.contexts.WithUser("bob").Get(ctx, models.ContextLevelGlobal, models.GlobalSingletonID)
	require.NoError(t, err)
	_, leaked := bobGlobal.Data["owner"]
	assert.False(t, leaked, "draining alice must not touch bob's rows")

	users, err := fx.delegations.ListPendingUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}
