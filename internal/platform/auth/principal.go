package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the account kind of a profile. The set is closed.
type Role string

const (
	RolePatient    Role = "patient"
	RoleResearcher Role = "researcher"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleResearcher:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) IsPatient() bool    { return r == RolePatient }
func (r Role) IsResearcher() bool { return r == RoleResearcher }

// Principal identifies the authenticated caller of a request.
type Principal struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Role      Role      `json:"role"`
	Username  string    `json:"username"`
}

type contextKey string

const (
	principalKey contextKey = "principal"
	claimsKey    contextKey = "session_claims"
)

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller set by SessionMiddleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// ClaimsFromContext returns the validated session claims of the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}
