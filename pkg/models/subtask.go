package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Subtask is a child unit of work owned by a task
type Subtask struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TaskID      uuid.UUID      `json:"task_id" db:"task_id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description,omitempty" db:"description"`
	Status      TaskStatus     `json:"status" db:"status"`
	Priority    TaskPriority   `json:"priority" db:"priority"`
	Assignees   pq.StringArray `json:"assignees,omitempty" db:"assignees"`
	Progress    int            `json:"progress_percentage" db:"progress_percentage"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate enforces the domain invariants on a subtask
func (s *Subtask) Validate() *AppError {
	if s.Title == "" {
		return NewValidationError("subtask title must not be empty").WithDetail("field", "title")
	}
	if !s.Status.IsValid() {
		return NewValidationError("unknown subtask status %q", s.Status).WithDetail("field", "status")
	}
	if !s.Priority.IsValid() {
		return NewValidationError("unknown subtask priority %q", s.Priority).WithDetail("field", "priority")
	}
	if s.Progress < 0 || s.Progress > 100 {
		return NewValidationError("progress_percentage must be within [0,100], got %d", s.Progress)
	}
	return nil
}
