package auth

import (
	"context"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var securityCtxKey = &contextKey{"security"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// Principal is the authenticated caller
type Principal struct {
	IdentityRef uuid.UUID
	Email       string
}

// SecurityContext holds the principal and granted authorities for a
// single request. It is never shared between requests.
type SecurityContext struct {
	principal   Principal
	authorities map[string]struct{}
}

// NewSecurityContext builds a security context from an account
func NewSecurityContext(account *Account) *SecurityContext {
	return &SecurityContext{
		principal: Principal{
			IdentityRef: account.IdentityRef,
			Email:       account.Email(),
		},
		authorities: RolesToAuthorities(account.Roles),
	}
}

// Principal returns the authenticated caller
func (sc *SecurityContext) Principal() Principal {
	return sc.principal
}

// HasAuthority reports whether the principal was granted role
func (sc *SecurityContext) HasAuthority(role Role) bool {
	if sc == nil {
		return false
	}
	_, ok := sc.authorities[role.String()]
	return ok
}

// Authorities returns the granted authorities in sorted order
func (sc *SecurityContext) Authorities() []string {
	out := make([]string, 0, len(sc.authorities))
	for a := range sc.authorities {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// WithSecurityContext attaches sc to ctx
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityCtxKey, sc)
}

// SecurityContextFromContext returns the security context attached by the gate
func SecurityContextFromContext(ctx context.Context) (*SecurityContext, bool) {
	sc, ok := ctx.Value(securityCtxKey).(*SecurityContext)
	return sc, ok && sc != nil
}

// PrincipalFromContext returns the authenticated principal
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	sc, ok := SecurityContextFromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	return sc.principal, true
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(ctx context.Context, claims AuthClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetFiberClaims extracts the AuthClaims stored by the gate in the
// request locals under key.
func GetFiberClaims(c *fiber.Ctx, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user"
	}
	claims, ok := c.Locals(key).(AuthClaims)
	return claims, ok
}

// RequirePrincipal returns the request principal or ErrTokenMissing
func RequirePrincipal(c *fiber.Ctx) (Principal, error) {
	p, ok := PrincipalFromContext(c.UserContext())
	if !ok {
		return Principal{}, ErrTokenMissing
	}
	return p, nil
}
