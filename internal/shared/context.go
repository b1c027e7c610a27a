package shared

import "context"

// Role names a staff role inside a hospital.
type Role string

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID        string `json:"uid"`
	TenantID      string `json:"hospitalId"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
