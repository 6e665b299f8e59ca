// Package httpauth resolves the authenticated caller for each request
// (session JWT, OIDC bearer token, or a development header fallback) and
// exposes the resulting identity through the request context.
package httpauth

import (
	"context"

	"github.com/google/uuid"
)

// Roles supported by the authorization gate, in descending privilege order.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleUser     = "user"
	RoleViewer   = "viewer"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleAdmin, RoleOperator, RoleUser, RoleViewer}

// Method describes how the caller was authenticated.
const (
	MethodSession = "session"
	MethodOIDC    = "oidc"
	MethodDev     = "dev"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	Subject string     // OIDC sub or display name
	Email   string
	Role    string
	UserID  uuid.UUID
	Method  string
}

type ctxKey string

const identityKey ctxKey = "kubefleet_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
