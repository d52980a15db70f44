package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Authorizer decides whether a security context may proceed
type Authorizer interface {
	Authorize(ctx context.Context, sc *SecurityContext) error
}

// AuthorizerFunc adapts a function to the Authorizer interface
type AuthorizerFunc func(ctx context.Context, sc *SecurityContext) error

func (f AuthorizerFunc) Authorize(ctx context.Context, sc *SecurityContext) error {
	return f(ctx, sc)
}

// RoleAuthorizer requires the principal to hold Role
type RoleAuthorizer struct {
	Role Role
}

// RequireRole returns an Authorizer requiring role
func RequireRole(role Role) RoleAuthorizer {
	return RoleAuthorizer{Role: role}
}

func (r RoleAuthorizer) Authorize(_ context.Context, sc *SecurityContext) error {
	if sc == nil {
		return ErrTokenMissing
	}
	if !sc.HasAuthority(r.Role) {
		return DeriveWithMetadata(ErrForbidden, "", map[string]any{
			"required_role": r.Role.String(),
		})
	}
	return nil
}

// Guard runs authorizer before the next handler. Failures are passed to
// errorHandler, or returned to fiber when errorHandler is nil.
func Guard(authorizer Authorizer, errorHandler fiber.ErrorHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sc, _ := SecurityContextFromContext(c.UserContext())
		if err := authorizer.Authorize(c.UserContext(), sc); err != nil {
			if errorHandler != nil {
				return errorHandler(c, err)
			}
			return err
		}
		return c.Next()
	}
}

// OwnerResolver returns the identity ref owning a resource
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, resourceRef uuid.UUID) (uuid.UUID, error)
}

// OwnerResolverFunc adapts a function to the OwnerResolver interface
type OwnerResolverFunc func(ctx context.Context, resourceRef uuid.UUID) (uuid.UUID, error)

func (f OwnerResolverFunc) ResolveOwner(ctx context.Context, resourceRef uuid.UUID) (uuid.UUID, error) {
	return f(ctx, resourceRef)
}

// OwnershipGate checks the caller owns a resource
type OwnershipGate struct {
	resolver OwnerResolver
}

// NewOwnershipGate creates a gate resolving owners through resolver
func NewOwnershipGate(resolver OwnerResolver) *OwnershipGate {
	return &OwnershipGate{resolver: resolver}
}

// Check resolves the owner of resourceRef and compares it with the
// principal. Roles never bypass the comparison.
func (g *OwnershipGate) Check(ctx context.Context, principal Principal, resourceRef uuid.UUID) error {
	owner, err := g.resolver.ResolveOwner(ctx, resourceRef)
	if err != nil {
		return err
	}
	return CheckOwnership(principal, owner)
}

// CheckOwnership compares a known owner with the principal
func CheckOwnership(principal Principal, owner uuid.UUID) error {
	if principal.IdentityRef == uuid.Nil || principal.IdentityRef != owner {
		return DeriveWithMetadata(ErrPermissionDenied, "", map[string]any{
			"identityRef": principal.IdentityRef.String(),
		})
	}
	return nil
}

// RequireOwnership returns a handler that checks the caller owns the
// resource named by the route parameter param.
func RequireOwnership(gate *OwnershipGate, param string, errorHandler fiber.ErrorHandler) fiber.Handler {
	if errorHandler == nil {
		errorHandler = func(_ *fiber.Ctx, err error) error { return err }
	}
	return func(c *fiber.Ctx) error {
		principal, err := RequirePrincipal(c)
		if err != nil {
			return errorHandler(c, err)
		}

		ref, err := ParseIdentityRef(c.Params(param))
		if err != nil {
			return errorHandler(c, err)
		}

		if err := gate.Check(c.UserContext(), principal, ref); err != nil {
			return errorHandler(c, err)
		}
		return c.Next()
	}
}
