package models

import (
	"time"

	"github.com/google/uuid"
)

// ContextLevel names one of the four context tiers
type ContextLevel string

const (
	ContextLevelGlobal  ContextLevel = "global"
	ContextLevelProject ContextLevel = "project"
	ContextLevelBranch  ContextLevel = "branch"
	ContextLevelTask    ContextLevel = "task"
)

// contextLevelRank orders the tiers root-first
var contextLevelRank = map[ContextLevel]int{
	ContextLevelGlobal:  0,
	ContextLevelProject: 1,
	ContextLevelBranch:  2,
	ContextLevelTask:    3,
}

// IsValid reports whether l is a known tier
func (l ContextLevel) IsValid() bool {
	_, ok := contextLevelRank[l]
	return ok
}

// Rank returns the tier depth, global being 0
func (l ContextLevel) Rank() int { return contextLevelRank[l] }

// Parent returns the next tier up, and false at the global tier
func (l ContextLevel) Parent() (ContextLevel, bool) {
	switch l {
	case ContextLevelProject:
		return ContextLevelGlobal, true
	case ContextLevelBranch:
		return ContextLevelProject, true
	case ContextLevelTask:
		return ContextLevelBranch, true
	default:
		return "", false
	}
}

// ParseContextLevel validates a raw level string
func ParseContextLevel(raw string) (ContextLevel, *AppError) {
	l := ContextLevel(raw)
	if !l.IsValid() {
		return "", NewValidationError("unknown context level %q", raw).
			WithDetail("field", "level").
			WithDetail("accepted", []ContextLevel{
				ContextLevelGlobal, ContextLevelProject, ContextLevelBranch, ContextLevelTask,
			})
	}
	return l, nil
}

// Context is one row of the four-tier hierarchy. The id of a non-global
// context equals the id of the owning project/branch/task; the global row
// is keyed by the well-known singleton id per user.
type Context struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Level     ContextLevel `json:"level" db:"level"`
	UserID    string       `json:"user_id" db:"user_id"`
	ParentID  *uuid.UUID   `json:"parent_id,omitempty" db:"parent_id"`
	Data      JSONMap      `json:"data" db:"data"`
	Metadata  JSONMap      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// ResolvedContext is the effective context after fold-merging the ancestor
// chain. Provenance records which tier supplied each top-level key.
type ResolvedContext struct {
	ID         uuid.UUID               `json:"id"`
	Level      ContextLevel            `json:"level"`
	Data       JSONMap                 `json:"data"`
	Provenance map[string]ContextLevel `json:"provenance"`
	ResolvedAt time.Time               `json:"resolved_at"`
}

// DelegationStatus is the processing state of a delegation row
type DelegationStatus string

const (
	DelegationStatusPending   DelegationStatus = "pending"
	DelegationStatusProcessed DelegationStatus = "processed"
	DelegationStatusFailed    DelegationStatus = "failed"
)

// Delegation promotes knowledge from a lower tier to a higher one. Rows are
// applied asynchronously, in order, by a per-user worker.
type Delegation struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	SourceLevel ContextLevel     `json:"source_level" db:"source_level"`
	SourceID    uuid.UUID        `json:"source_id" db:"source_id"`
	TargetLevel ContextLevel     `json:"target_level" db:"target_level"`
	Payload     JSONMap          `json:"payload" db:"payload"`
	Status      DelegationStatus `json:"status" db:"status"`
	Attempts    int              `json:"attempts" db:"attempts"`
	LastError   string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
}
