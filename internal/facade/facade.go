// Package facade exposes user-bound views over the business services.
// A facade is obtained per authenticated request and carries the user
// identity, so handler code can never forget to scope a call. Instances
// are cached per (user, aggregate) and invalidated on session teardown.
package facade

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/phamhung075/4genthub-sub028/internal/core"
	"github.com/phamhung075/4genthub-sub028/internal/services"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

type aggregate string

const (
	aggregateProject    aggregate = "project"
	aggregateBranch     aggregate = "branch"
	aggregateTask       aggregate = "task"
	aggregateSubtask    aggregate = "subtask"
	aggregateDependency aggregate = "dependency"
	aggregateAgent      aggregate = "agent"
	aggregateContext    aggregate = "context"
)

// Factory builds and caches user-bound facades
type Factory struct {
	services *services.Services
	contexts *core.ContextManager
	worker   *core.DelegationWorker

	cache *expirable.LRU[string, interface{}]
	// users tracks the cache keys per user for targeted invalidation
	users *expirable.LRU[string, map[string]struct{}]
}

// NewFactory creates the facade factory. size caps the number of cached
// facades across all users; entries older than ttl are rebuilt on the
// next request. A zero ttl disables expiry.
func NewFactory(svcs *services.Services, contexts *core.ContextManager, worker *core.DelegationWorker, size int, ttl time.Duration) *Factory {
	if size <= 0 {
		size = 1024
	}
	return &Factory{
		services: svcs,
		contexts: contexts,
		worker:   worker,
		cache:    expirable.NewLRU[string, interface{}](size, nil, ttl),
		users:    expirable.NewLRU[string, map[string]struct{}](size, nil, ttl),
	}
}

// Invalidate drops every cached facade of one user. Called on sign-out and
// when the user's account state changes shape.
func (f *Factory) Invalidate(userID string) {
	keys, ok := f.users.Get(userID)
	if !ok {
		return
	}
	for key := range keys {
		f.cache.Remove(key)
	}
	f.users.Remove(userID)
}

// get returns the cached facade for (user, aggregate) or builds one.
// A missing user id is a hard error: no facade ever exists without an
// owner.
func (f *Factory) get(userID string, agg aggregate, build func() interface{}) (interface{}, *models.AppError) {
	if userID == "" {
		return nil, models.NewUnauthenticatedError("user identity required")
	}
	key := fmt.Sprintf("%s:%s", userID, agg)
	if cached, ok := f.cache.Get(key); ok {
		return cached, nil
	}
	built := build()
	f.cache.Add(key, built)

	keys, ok := f.users.Get(userID)
	if !ok {
		keys = map[string]struct{}{}
	}
	keys[key] = struct{}{}
	f.users.Add(userID, keys)
	return built, nil
}

// Projects returns the user-bound project facade
func (f *Factory) Projects(userID string) (*ProjectFacade, *models.AppError) {
	v, err := f.get(userID, aggregateProject, func() interface{} {
		return &ProjectFacade{userID: userID, svc: f.services.Projects}
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProjectFacade), nil
}

// Branches returns the user-bound branch facade
func (f *Factory) Branches(userID string) (*BranchFacade, *models.AppError) {
	v, err := f.get(userID, aggregateBranch, func() interface{} {
		return &BranchFacade{userID: userID, svc: f.services.Branches}
	})
	if err != nil {
		return nil, err
	}
	return v.(*BranchFacade), nil
}

// Tasks returns the user-bound task facade
func (f *Factory) Tasks(userID string) (*TaskFacade, *models.AppError) {
	v, err := f.get(userID, aggregateTask, func() interface{} {
		return &TaskFacade{userID: userID, svc: f.services.Tasks}
	})
	if err != nil {
		return nil, err
	}
	return v.(*TaskFacade), nil
}

// Subtasks returns the user-bound subtask facade
func (f *Factory) Subtasks(userID string) (*SubtaskFacade, *models.AppError) {
	v, err := f.get(userID, aggregateSubtask, func() interface{} {
		return &SubtaskFacade{userID: userID, svc: f.services.Subtasks}
	})
	if err != nil {
		return nil, err
	}
	return v.(*SubtaskFacade), nil
}

// Dependencies returns the user-bound dependency facade
func (f *Factory) Dependencies(userID string) (*DependencyFacade, *models.AppError) {
	v, err := f.get(userID, aggregateDependency, func() interface{} {
		return &DependencyFacade{userID: userID, svc: f.services.Dependencies}
	})
	if err != nil {
		return nil, err
	}
	return v.(*DependencyFacade), nil
}

// Agents returns the user-bound agent facade
func (f *Factory) Agents(userID string) (*AgentFacade, *models.AppError) {
	v, err := f.get(userID, aggregateAgent, func() interface{} {
		return &AgentFacade{userID: userID, svc: f.services.Agents}
	})
	if err != nil {
		return nil, err
	}
	return v.(*AgentFacade), nil
}

// Contexts returns the user-bound context facade
func (f *Factory) Contexts(userID string) (*ContextFacade, *models.AppError) {
	v, err := f.get(userID, aggregateContext, func() interface{} {
		return &ContextFacade{userID: userID, manager: f.contexts, worker: f.worker}
	})
	if err != nil {
		return nil, err
	}
	return v.(*ContextFacade), nil
}
