package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated caller. A nil *Principal is the anonymous caller.
type Principal struct {
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// IsOwnerOrOverride reports whether p owns a record created by ownerID or holds an override role.
func (p *Principal) IsOwnerOrOverride(ownerID uuid.UUID) bool {
	if p == nil {
		return false
	}
	return p.UserID == ownerID || p.Role.IsOverride()
}

// WithPrincipal stores p on the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext returns the caller, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}

func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Role.String()
	}
	return ""
}
