// Package events is the broadcast/notification layer. Change events are
// fire-and-forget: delivery failures are logged, never surfaced to the
// write path, and every event is filtered by ownership before it leaves
// the process.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a change notification
type EventType string

const (
	EventProjectCreated    EventType = "project.created"
	EventProjectUpdated    EventType = "project.updated"
	EventProjectDeleted    EventType = "project.deleted"
	EventBranchCreated     EventType = "branch.created"
	EventBranchUpdated     EventType = "branch.updated"
	EventBranchDeleted     EventType = "branch.deleted"
	EventTaskCreated       EventType = "task.created"
	EventTaskUpdated       EventType = "task.updated"
	EventTaskCompleted     EventType = "task.completed"
	EventTaskDeleted       EventType = "task.deleted"
	EventSubtaskCreated    EventType = "subtask.created"
	EventSubtaskUpdated    EventType = "subtask.updated"
	EventSubtaskDeleted    EventType = "subtask.deleted"
	EventDependencyAdded   EventType = "dependency.added"
	EventDependencyRemoved EventType = "dependency.removed"
	EventContextUpdated    EventType = "context.updated"
	EventCounterChanged    EventType = "counter.changed"
	EventAgentAssigned     EventType = "agent.assigned"
	EventDelegationFailed  EventType = "delegation.failed"
)

// Event is one change notification. OwnerUserID controls delivery: only
// the owner's subscriptions ever see the event.
type Event struct {
	Type        EventType              `json:"type"`
	EntityType  string                 `json:"entity_type"`
	EntityID    uuid.UUID              `json:"entity_id"`
	OwnerUserID string                 `json:"-"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Sink receives events for delivery over some transport. The delivery
// error feeds the dispatcher's circuit breaker; a sink that cannot fail
// returns nil.
type Sink interface {
	Notify(event Event) error
}

// NoopSink drops every event
type NoopSink struct{}

func (NoopSink) Notify(event Event) error { return nil }
