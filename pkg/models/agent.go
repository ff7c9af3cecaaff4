package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Agent is a registered agent identity that can be assigned to branches
type Agent struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description,omitempty" db:"description"`
	Capabilities JSONMap   `json:"capabilities,omitempty" db:"capabilities"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AgentAssignment binds an agent to a branch
type AgentAssignment struct {
	BranchID  uuid.UUID `json:"branch_id" db:"branch_id"`
	AgentID   uuid.UUID `json:"agent_id" db:"agent_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

var kebabCase = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// NormalizeAgentName canonicalizes an agent identifier given by name:
// a leading "@" is stripped, case folded, spaces and underscores become
// hyphens. The result must be kebab-case.
func NormalizeAgentName(raw string) (string, *AppError) {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "@")
	name = strings.ToLower(name)
	name = strings.NewReplacer(" ", "-", "_", "-").Replace(name)
	if name == "" || !kebabCase.MatchString(name) {
		return "", NewValidationError("agent identifier %q is not a UUID or kebab-case name", raw).
			WithDetail("field", "agent_id").
			WithDetail("accepted_formats", []string{"UUID", "kebab-case name", "@kebab-case name"})
	}
	return name, nil
}

// DeriveAgentID maps a canonical agent name to a deterministic version-5
// UUID under a per-project namespace, so the same name always yields the
// same id within one project.
func DeriveAgentID(projectID uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(projectID, []byte(name))
}

// ResolveAgentIdentifier accepts either a UUID (canonical or compact) or an
// agent name and returns the agent id
func ResolveAgentIdentifier(projectID uuid.UUID, raw string) (uuid.UUID, *AppError) {
	if id, err := NormalizeID(raw); err == nil {
		return id, nil
	}
	name, appErr := NormalizeAgentName(raw)
	if appErr != nil {
		return uuid.Nil, appErr
	}
	return DeriveAgentID(projectID, name), nil
}
