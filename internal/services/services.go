// Package services implements the business operations over the aggregate
// roots. Services are stateless singletons; every method takes the calling
// user's id and scopes all repository access to it.
package services

import (
	"github.com/phamhung075/4genthub-sub028/internal/core"
	"github.com/phamhung075/4genthub-sub028/internal/database"
	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/cache"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Deps carries the shared collaborators every service needs
type Deps struct {
	DB         *database.Database
	Repos      *repository.Repositories
	Contexts   *core.ContextManager
	Dispatcher *events.Dispatcher
	Cache      cache.Cache
	Logger     observability.Logger
	Metrics    observability.MetricsClient

	// MaxDependencyEdges caps a user's dependency graph; zero disables
	// the cap
	MaxDependencyEdges int
}

// Services bundles every business service for wiring
type Services struct {
	Projects     *ProjectService
	Branches     *BranchService
	Tasks        *TaskService
	Subtasks     *SubtaskService
	Dependencies *DependencyService
	Agents       *AgentService
}

// New wires the full service set
func New(deps Deps) *Services {
	dependencies := NewDependencyService(deps)
	return &Services{
		Projects:     NewProjectService(deps),
		Branches:     NewBranchService(deps),
		Tasks:        NewTaskService(deps, dependencies),
		Subtasks:     NewSubtaskService(deps),
		Dependencies: dependencies,
		Agents:       NewAgentService(deps),
	}
}
