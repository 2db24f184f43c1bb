package models

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles recognised by the RBAC middleware.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleAuditor    UserRole = "AUDITOR"
)

// Valid reports whether the role is recognised.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleAuditor:
		return true
	}
	return false
}

// JWTClaims represents the payload of access tokens issued by the identity provider.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	WarehouseID string   `json:"warehouse_id,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// Actor identifies the user and warehouse an upstream call is made on behalf of.
type Actor struct {
	UserID      string
	WarehouseID string
}

type actorKey struct{}

// ContextWithActor attaches the acting user to ctx.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
