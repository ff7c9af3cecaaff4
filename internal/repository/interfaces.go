// Package repository defines the persistence contracts for every aggregate
// root. Each repository can be rebound to a user scope with WithUser; a
// bound instance filters every query by user_id and stamps user_id on
// every write. Unbound repositories are legal only on system paths.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// Sentinel errors returned by repositories. Services translate them into
// domain error codes.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	// ErrUnbound is returned when a user-scoped operation is attempted on
	// a repository that was never bound with WithUser. This is a
	// programming error, never a silent fallback.
	ErrUnbound = errors.New("repository not bound to a user scope")
)

// ProjectRepository persists projects
type ProjectRepository interface {
	WithUser(userID string) ProjectRepository
	WithTx(tx *sqlx.Tx) ProjectRepository

	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BranchRepository persists git branches
type BranchRepository interface {
	WithUser(userID string) BranchRepository
	WithTx(tx *sqlx.Tx) BranchRepository

	Create(ctx context.Context, branch *models.Branch) error
	Get(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Branch, error)
	List(ctx context.Context) ([]*models.Branch, error)
	Update(ctx context.Context, branch *models.Branch) error
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateCounters writes recomputed counters for one branch
	UpdateCounters(ctx context.Context, id uuid.UUID, taskCount, completedCount int) error
	// CountTasks recomputes the authoritative counts from the tasks table
	CountTasks(ctx context.Context, id uuid.UUID) (total int, completed int, err error)
}

// TaskRepository persists tasks
type TaskRepository interface {
	WithUser(userID string) TaskRepository
	WithTx(tx *sqlx.Tx) TaskRepository

	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetTasksByBranch(ctx context.Context, branchID uuid.UUID) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubtaskRepository persists subtasks
type SubtaskRepository interface {
	WithUser(userID string) SubtaskRepository
	WithTx(tx *sqlx.Tx) SubtaskRepository

	Create(ctx context.Context, subtask *models.Subtask) error
	Get(ctx context.Context, id uuid.UUID) (*models.Subtask, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Subtask, error)
	Update(ctx context.Context, subtask *models.Subtask) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ContextRepository persists the four-tier context rows
type ContextRepository interface {
	WithUser(userID string) ContextRepository
	WithTx(tx *sqlx.Tx) ContextRepository

	Create(ctx context.Context, record *models.Context) error
	Get(ctx context.Context, level models.ContextLevel, id uuid.UUID) (*models.Context, error)
	Update(ctx context.Context, record *models.Context) error
	Delete(ctx context.Context, level models.ContextLevel, id uuid.UUID) error
	// DeleteSubtree removes the row and every descendant context row.
	// Used by the owning-tree delete paths, which cascade through the
	// context tree in the same transaction.
	DeleteSubtree(ctx context.Context, id uuid.UUID) error

	// FindAncestors returns the chain from Global down to the parent of
	// (level, id), ordered root-first. Missing ancestors are skipped.
	FindAncestors(ctx context.Context, level models.ContextLevel, id uuid.UUID) ([]*models.Context, error)
	// HasChildren reports whether any context row has this row as parent
	HasChildren(ctx context.Context, id uuid.UUID) (bool, error)
}

// DependencyRepository persists the task dependency edges
type DependencyRepository interface {
	WithUser(userID string) DependencyRepository
	WithTx(tx *sqlx.Tx) DependencyRepository

	Add(ctx context.Context, taskID, dependsOn uuid.UUID) error
	Remove(ctx context.Context, taskID, dependsOn uuid.UUID) error
	Clear(ctx context.Context, taskID uuid.UUID) error
	// ListForTask returns the direct predecessors of taskID
	ListForTask(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)
	// ListDependents returns the direct successors of taskID
	ListDependents(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)
	// ListAll returns every edge of the user as (task, depends_on) pairs
	ListAll(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error)
	// Count returns the number of edges in the user's graph
	Count(ctx context.Context) (int, error)
}

// AgentRepository persists agents and branch assignments
type AgentRepository interface {
	WithUser(userID string) AgentRepository
	WithTx(tx *sqlx.Tx) AgentRepository

	Register(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetByName(ctx context.Context, name string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	Unregister(ctx context.Context, id uuid.UUID) error

	Assign(ctx context.Context, branchID, agentID uuid.UUID) error
	Unassign(ctx context.Context, branchID, agentID uuid.UUID) error
	ListAssignments(ctx context.Context, branchID uuid.UUID) ([]uuid.UUID, error)
}

// DelegationRepository persists context delegation rows. The listing
// methods used by the background worker are deliberately unbound: the
// worker processes all users' rows, each application re-scoped to the
// owning user.
type DelegationRepository interface {
	WithUser(userID string) DelegationRepository
	WithTx(tx *sqlx.Tx) DelegationRepository

	Create(ctx context.Context, delegation *models.Delegation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Delegation, error)
	ListPending(ctx context.Context, userID string, limit int) ([]*models.Delegation, error)
	ListPendingUsers(ctx context.Context) ([]string, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, final bool) error
}

// Repositories bundles every contract for wiring
type Repositories struct {
	Projects     ProjectRepository
	Branches     BranchRepository
	Tasks        TaskRepository
	Subtasks     SubtaskRepository
	Contexts     ContextRepository
	Dependencies DependencyRepository
	Agents       AgentRepository
	Delegations  DelegationRepository
}
