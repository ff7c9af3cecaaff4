package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the top-level aggregate. Name is unique per user.
type Project struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// Computed, not stored
	Branches []*Branch `json:"branches,omitempty" db:"-"`
}

// ProjectHealth summarizes integrity findings for one project
type ProjectHealth struct {
	ProjectID       uuid.UUID `json:"project_id"`
	BranchCount     int       `json:"branch_count"`
	TaskCount       int       `json:"task_count"`
	CompletedTasks  int       `json:"completed_tasks"`
	CounterDrift    []uuid.UUID `json:"counter_drift,omitempty"`
	OrphanedContexts int      `json:"orphaned_contexts"`
	Healthy         bool      `json:"healthy"`
}
