package shared

import "context"

// Principal is the authenticated identity resolved from a bearer token,
// carrying its effective permission set.
type Principal struct {
	UserID      int64    `json:"user_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	RoleID      int64    `json:"role_id"`
	Permissions []string `json:"permissions"`
}

// HasAny reports whether the principal holds at least one of the required
// permission slugs.
func (p *Principal) HasAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	if p == nil {
		return false
	}
	granted := make(map[string]struct{}, len(p.Permissions))
	for _, slug := range p.Permissions {
		granted[slug] = struct{}{}
	}
	for _, slug := range required {
		if _, ok := granted[slug]; ok {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
