package models

import (
	"time"

	"github.com/google/uuid"
)

// Branch is a workstream under a project; a bag of tasks. Name is unique
// per project. The two counters are authoritative denormalizations kept in
// step by database triggers (self-healed by BranchService.RecomputeCounters).
type Branch struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	ProjectID          uuid.UUID `json:"project_id" db:"project_id"`
	UserID             string    `json:"user_id" db:"user_id"`
	Name               string    `json:"name" db:"name"`
	Description        string    `json:"description,omitempty" db:"description"`
	TaskCount          int       `json:"task_count" db:"task_count"`
	CompletedTaskCount int       `json:"completed_task_count" db:"completed_task_count"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`

	// Computed, not stored
	AssignedAgents []uuid.UUID `json:"assigned_agents,omitempty" db:"-"`
}

// CounterDiscrepancy reports a branch whose stored counters disagreed with
// the recomputed truth
type CounterDiscrepancy struct {
	BranchID               uuid.UUID `json:"branch_id"`
	StoredTaskCount        int       `json:"stored_task_count"`
	ActualTaskCount        int       `json:"actual_task_count"`
	StoredCompletedCount   int       `json:"stored_completed_count"`
	ActualCompletedCount   int       `json:"actual_completed_count"`
}
