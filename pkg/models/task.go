package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Task is a unit of work under a branch. Tasks own their subtasks, their
// dependency edges and their task-tier context row; deleting a task
// cascades to all three.
type Task struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	BranchID        uuid.UUID      `json:"git_branch_id" db:"branch_id"`
	UserID          string         `json:"user_id" db:"user_id"`
	Title           string         `json:"title" db:"title"`
	Description     string         `json:"description,omitempty" db:"description"`
	Status          TaskStatus     `json:"status" db:"status"`
	Priority        TaskPriority   `json:"priority" db:"priority"`
	Assignees       pq.StringArray `json:"assignees" db:"assignees"`
	Labels          pq.StringArray `json:"labels,omitempty" db:"labels"`
	EstimatedEffort string         `json:"estimated_effort,omitempty" db:"estimated_effort"`
	DueDate         *time.Time     `json:"due_date,omitempty" db:"due_date"`
	Progress        int            `json:"progress_percentage" db:"progress_percentage"`
	ProgressHistory JSONMap        `json:"progress_history" db:"progress_history"`
	ContextID       *uuid.UUID     `json:"context_id,omitempty" db:"context_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`

	// Computed by the dependency engine, not stored
	Subtasks        []*Subtask  `json:"subtasks,omitempty" db:"-"`
	DependsOn       []uuid.UUID `json:"dependencies,omitempty" db:"-"`
	CanStart        bool        `json:"can_start" db:"-"`
	IsBlocked       bool        `json:"is_blocked" db:"-"`
	BlockingTaskIDs []uuid.UUID `json:"blocking_task_ids,omitempty" db:"-"`
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// ValidTaskStatuses is the authoritative status set
var ValidTaskStatuses = []TaskStatus{
	TaskStatusTodo, TaskStatusInProgress, TaskStatusBlocked,
	TaskStatusDone, TaskStatusCancelled,
}

// IsValid reports whether s is a known status
func (s TaskStatus) IsValid() bool {
	for _, v := range ValidTaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the task's lifecycle. Terminal
// predecessors no longer block their dependents.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

// TaskPriority represents the urgency of a task
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// ValidTaskPriorities is the authoritative priority set
var ValidTaskPriorities = []TaskPriority{
	TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical,
}

// IsValid reports whether p is a known priority
func (p TaskPriority) IsValid() bool {
	for _, v := range ValidTaskPriorities {
		if p == v {
			return true
		}
	}
	return false
}

// Validate enforces the domain invariants on a task before persistence
func (t *Task) Validate() *AppError {
	if t.Title == "" {
		return NewValidationError("task title must not be empty").WithDetail("field", "title")
	}
	if len(t.Assignees) == 0 {
		return NewValidationError("task requires at least one assignee").WithDetail("field", "assignees")
	}
	if !t.Status.IsValid() {
		return NewValidationError("unknown task status %q", t.Status).
			WithDetail("field", "status").
			WithDetail("accepted", ValidTaskStatuses)
	}
	if !t.Priority.IsValid() {
		return NewValidationError("unknown task priority %q", t.Priority).
			WithDetail("field", "priority").
			WithDetail("accepted", ValidTaskPriorities)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return NewValidationError("progress_percentage must be within [0,100], got %d", t.Progress).
			WithDetail("field", "progress_percentage")
	}
	return nil
}

// AppendProgress records a numbered progress entry. Entries are numbered
// 1..N without gaps; the next number is one past the current count.
func (t *Task) AppendProgress(content string, percentage int) *AppError {
	if percentage < 0 || percentage > 100 {
		return NewValidationError("progress_percentage must be within [0,100], got %d", percentage)
	}
	if t.ProgressHistory == nil {
		t.ProgressHistory = JSONMap{}
	}
	next := len(t.ProgressHistory) + 1
	t.ProgressHistory[strconv.Itoa(next)] = map[string]interface{}{
		"content":             content,
		"progress_percentage": percentage,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	}
	t.Progress = percentage
	return nil
}

// ProgressEntryCount returns the number of recorded progress entries
func (t *Task) ProgressEntryCount() int {
	return len(t.ProgressHistory)
}

// Label formats the task for log lines
func (t *Task) Label() string {
	return fmt.Sprintf("%s (%s)", t.Title, t.ID)
}
