package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role enumerates organization scoped roles.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleTreasurer Role = "TREASURER"
	RoleMember    Role = "MEMBER"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTreasurer, RoleMember:
		return true
	}
	return false
}

// Principal is the authenticated actor, scoped to one organization.
type Principal struct {
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Role           Role      `json:"role"`
}

// CanManageLedger reports whether the principal may mutate dues, payments and transactions.
func (p Principal) CanManageLedger() bool {
	return p.Role == RoleAdmin || p.Role == RoleTreasurer
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
