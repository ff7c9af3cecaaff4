// Package auth provides centralized authentication for the agenthub
// server: verification of platform-issued OIDC tokens and locally issued
// API tokens, and propagation of the authenticated principal through the
// request context.
package auth

// TokenType identifies which issuer produced a verified token
type TokenType string

const (
	TokenTypePlatform TokenType = "platform"
	TokenTypeAPI      TokenType = "api"
)

// DefaultScope is granted to platform tokens that carry no scopes claim
const DefaultScope = "mcp:access"

// RoleAdmin marks principals allowed to take the explicit admin paths
const RoleAdmin = "admin"

// Principal is the authenticated user and token metadata for one request
type Principal struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	TokenType TokenType `json:"token_type"`
	Issuer    string    `json:"issuer,omitempty"`
}

// IsAdmin reports whether the principal carries the admin role
func (p *Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// HasScope reports whether the principal carries the given scope
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
