package auth

import "context"

// contextKey is a private type so request-scope values cannot collide
type contextKey string

const principalKey contextKey = "auth_principal"

// WithPrincipal returns a context carrying the authenticated principal.
// The dispatcher sets it immediately after verification; spawned goroutines
// inherit it through the derived context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the principal from the context. The second return
// is false when no principal was set; callers must treat that as
// unauthenticated, never substitute a default user.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil || p.UserID == "" {
		return nil, false
	}
	return p, true
}
