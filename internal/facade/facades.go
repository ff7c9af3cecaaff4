package facade

import (
	"context"

	"github.com/google/uuid"

	"github.com/phamhung075/4genthub-sub028/internal/core"
	"github.com/phamhung075/4genthub-sub028/internal/services"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// ProjectFacade is the user-bound view over ProjectService
type ProjectFacade struct {
	userID string
	svc    *services.ProjectService
}

func (f *ProjectFacade) Create(ctx context.Context, name, description string) (*models.Project, error) {
	return f.svc.Create(ctx, f.userID, name, description)
}

func (f *ProjectFacade) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return f.svc.Get(ctx, f.userID, id)
}

func (f *ProjectFacade) GetByName(ctx context.Context, name string) (*models.Project, error) {
	return f.svc.GetByName(ctx, f.userID, name)
}

func (f *ProjectFacade) List(ctx context.Context) ([]*models.Project, error) {
	return f.svc.List(ctx, f.userID)
}

func (f *ProjectFacade) Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Project, error) {
	return f.svc.Update(ctx, f.userID, id, name, description)
}

func (f *ProjectFacade) Delete(ctx context.Context, id uuid.UUID) error {
	return f.svc.Delete(ctx, f.userID, id)
}

func (f *ProjectFacade) HealthCheck(ctx context.Context, id uuid.UUID) (*models.ProjectHealth, error) {
	return f.svc.HealthCheck(ctx, f.userID, id)
}

func (f *ProjectFacade) ValidateIntegrity(ctx context.Context, id uuid.UUID) (map[string]interface{}, error) {
	return f.svc.ValidateIntegrity(ctx, f.userID, id)
}

func (f *ProjectFacade) CleanupObsolete(ctx context.Context, id uuid.UUID) (map[string]interface{}, error) {
	return f.svc.CleanupObsolete(ctx, f.userID, id)
}

func (f *ProjectFacade) RebalanceAgents(ctx context.Context, id uuid.UUID) (map[string]interface{}, error) {
	return f.svc.RebalanceAgents(ctx, f.userID, id)
}

// BranchFacade is the user-bound view over BranchService
type BranchFacade struct {
	userID string
	svc    *services.BranchService
}

func (f *BranchFacade) Create(ctx context.Context, projectID uuid.UUID, name, description string) (*models.Branch, error) {
	return f.svc.Create(ctx, f.userID, projectID, name, description)
}

func (f *BranchFacade) Get(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	return f.svc.Get(ctx, f.userID, id)
}

func (f *BranchFacade) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Branch, error) {
	return f.svc.ListByProject(ctx, f.userID, projectID)
}

func (f *BranchFacade) List(ctx context.Context) ([]*models.Branch, error) {
	return f.svc.List(ctx, f.userID)
}

func (f *BranchFacade) Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Branch, error) {
	return f.svc.Update(ctx, f.userID, id, name, description)
}

func (f *BranchFacade) Delete(ctx context.Context, id uuid.UUID) error {
	return f.svc.Delete(ctx, f.userID, id)
}

func (f *BranchFacade) RecomputeCounters(ctx context.Context, id uuid.UUID) (*models.CounterDiscrepancy, bool, error) {
	return f.svc.RecomputeCounters(ctx, f.userID, id)
}

func (f *BranchFacade) Statistics(ctx context.Context, id uuid.UUID) (map[string]interface{}, error) {
	return f.svc.Statistics(ctx, f.userID, id)
}

// TaskFacade is the user-bound view over TaskService
type TaskFacade struct {
	userID string
	svc    *services.TaskService
}

func (f *TaskFacade) Create(ctx context.Context, input services.TaskCreateInput) (*models.Task, error) {
	return f.svc.Create(ctx, f.userID, input)
}

func (f *TaskFacade) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return f.svc.Get(ctx, f.userID, id)
}

func (f *TaskFacade) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]*models.Task, error) {
	return f.svc.ListByBranch(ctx, f.userID, branchID)
}

func (f *TaskFacade) Update(ctx context.Context, id uuid.UUID, input services.TaskUpdateInput) (*models.Task, error) {
	return f.svc.Update(ctx, f.userID, id, input)
}

func (f *TaskFacade) Complete(ctx context.Context, id uuid.UUID, completionSummary, testingNotes string) (*services.TaskCompletionResult, error) {
	return f.svc.Complete(ctx, f.userID, id, completionSummary, testingNotes)
}

func (f *TaskFacade) Delete(ctx context.Context, id uuid.UUID) error {
	return f.svc.Delete(ctx, f.userID, id)
}

func (f *TaskFacade) Next(ctx context.Context, branchID uuid.UUID) (*models.Task, error) {
	return f.svc.Next(ctx, f.userID, branchID)
}

// SubtaskFacade is the user-bound view over SubtaskService
type SubtaskFacade struct {
	userID string
	svc    *services.SubtaskService
}

func (f *SubtaskFacade) Create(ctx context.Context, taskID uuid.UUID, title, description string, priority models.TaskPriority, assignees []string) (*models.Subtask, error) {
	return f.svc.Create(ctx, f.userID, taskID, title, description, priority, assignees)
}

func (f *SubtaskFacade) Get(ctx context.Context, id uuid.UUID) (*models.Subtask, error) {
	return f.svc.Get(ctx, f.userID, id)
}

func (f *SubtaskFacade) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Subtask, error) {
	return f.svc.ListByTask(ctx, f.userID, taskID)
}

func (f *SubtaskFacade) Update(ctx context.Context, id uuid.UUID, input services.SubtaskUpdateInput) (*models.Subtask, error) {
	return f.svc.Update(ctx, f.userID, id, input)
}

func (f *SubtaskFacade) Complete(ctx context.Context, id uuid.UUID) (*models.Subtask, error) {
	return f.svc.Complete(ctx, f.userID, id)
}

func (f *SubtaskFacade) Delete(ctx context.Context, id uuid.UUID) error {
	return f.svc.Delete(ctx, f.userID, id)
}

// DependencyFacade is the user-bound view over DependencyService
type DependencyFacade struct {
	userID string
	svc    *services.DependencyService
}

func (f *DependencyFacade) Add(ctx context.Context, taskID, dependsOn uuid.UUID) error {
	return f.svc.Add(ctx, f.userID, taskID, dependsOn)
}

func (f *DependencyFacade) Remove(ctx context.Context, taskID, dependsOn uuid.UUID) error {
	return f.svc.Remove(ctx, f.userID, taskID, dependsOn)
}

func (f *DependencyFacade) ListFor(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	return f.svc.ListFor(ctx, f.userID, taskID)
}

func (f *DependencyFacade) Clear(ctx context.Context, taskID uuid.UUID) error {
	return f.svc.Clear(ctx, f.userID, taskID)
}

func (f *DependencyFacade) BlockingTasks(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	return f.svc.BlockingTasks(ctx, f.userID, taskID)
}

func (f *DependencyFacade) Graph(ctx context.Context) (map[string]interface{}, error) {
	return f.svc.Graph(ctx, f.userID)
}

// AgentFacade is the user-bound view over AgentService
type AgentFacade struct {
	userID string
	svc    *services.AgentService
}

func (f *AgentFacade) Call(ctx context.Context, name string) (*models.Agent, error) {
	return f.svc.Call(ctx, f.userID, name)
}

func (f *AgentFacade) Register(ctx context.Context, projectID uuid.UUID, name, description string, capabilities models.JSONMap) (*models.Agent, error) {
	return f.svc.Register(ctx, f.userID, projectID, name, description, capabilities)
}

func (f *AgentFacade) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return f.svc.Get(ctx, f.userID, id)
}

func (f *AgentFacade) List(ctx context.Context) ([]*models.Agent, error) {
	return f.svc.List(ctx, f.userID)
}

func (f *AgentFacade) Unregister(ctx context.Context, id uuid.UUID) error {
	return f.svc.Unregister(ctx, f.userID, id)
}

func (f *AgentFacade) Assign(ctx context.Context, branchID uuid.UUID, agent string) (*models.Agent, error) {
	return f.svc.Assign(ctx, f.userID, branchID, agent)
}

func (f *AgentFacade) Unassign(ctx context.Context, branchID uuid.UUID, agent string) error {
	return f.svc.Unassign(ctx, f.userID, branchID, agent)
}

// ContextFacade is the user-bound view over the context engine
type ContextFacade struct {
	userID  string
	manager *core.ContextManager
	worker  *core.DelegationWorker
}

func (f *ContextFacade) NormalizeTarget(level models.ContextLevel, rawID string) (uuid.UUID, *models.AppError) {
	return f.manager.NormalizeTarget(level, rawID)
}

func (f *ContextFacade) Create(ctx context.Context, level models.ContextLevel, id uuid.UUID, data, metadata models.JSONMap) (*models.Context, error) {
	return f.manager.Create(ctx, f.userID, level, id, data, metadata)
}

func (f *ContextFacade) Get(ctx context.Context, level models.ContextLevel, id uuid.UUID, includeInherited bool) (*models.Context, *models.ResolvedContext, error) {
	return f.manager.Get(ctx, f.userID, level, id, includeInherited)
}

func (f *ContextFacade) Update(ctx context.Context, level models.ContextLevel, id uuid.UUID, data models.JSONMap) (*models.Context, error) {
	return f.manager.Update(ctx, f.userID, level, id, data)
}

func (f *ContextFacade) Delete(ctx context.Context, level models.ContextLevel, id uuid.UUID) error {
	return f.manager.Delete(ctx, f.userID, level, id)
}

func (f *ContextFacade) Resolve(ctx context.Context, level models.ContextLevel, id uuid.UUID) (*models.ResolvedContext, error) {
	return f.manager.Resolve(ctx, f.userID, level, id)
}

// Delegate queues the payload and nudges the worker so it lands without
// waiting for the next poll
func (f *ContextFacade) Delegate(ctx context.Context, sourceLevel models.ContextLevel, sourceID uuid.UUID, targetLevel models.ContextLevel, payload models.JSONMap) (*models.Delegation, error) {
	delegation, err := f.manager.Delegate(ctx, f.userID, sourceLevel, sourceID, targetLevel, payload)
	if err != nil {
		return nil, err
	}
	if f.worker != nil {
		f.worker.Kick(context.WithoutCancel(ctx), f.userID)
	}
	return delegation, nil
}
