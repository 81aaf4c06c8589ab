// Package rbac gates privileged vault operations on caller identity and role.
package rbac

import (
	"context"
	"fmt"

	"treasury/internal/vault/models"
	"treasury/internal/vault/ports"
	dErrors "treasury/pkg/domain-errors"
)

// RoleReader resolves an identity's role, defaulting to Member.
type RoleReader interface {
	Role(ctx context.Context, id models.Identity) (models.Role, error)
}

// Guard composes caller confirmation with role lookups.
type Guard struct {
	auth ports.Authenticator
}

func NewGuard(auth ports.Authenticator) (*Guard, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	return &Guard{auth: auth}, nil
}

// Confirm fails with Unauthorized unless caller authenticated this invocation.
func (g *Guard) Confirm(ctx context.Context, caller models.Identity) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if err := g.auth.Confirm(ctx, caller); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "caller could not be confirmed")
	}
	return nil
}

// RequireRole fails with InsufficientRole unless id holds at least min.
func (g *Guard) RequireRole(ctx context.Context, roles RoleReader, id models.Identity, min models.Role) (models.Role, error) {
	role, err := roles.Role(ctx, id)
	if err != nil {
		return models.RoleMember, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load role")
	}
	if !role.AtLeast(min) {
		return role, dErrors.New(dErrors.CodeInsufficientRole,
			fmt.Sprintf("%s role required, caller is %s", min, role))
	}
	return role, nil
}
