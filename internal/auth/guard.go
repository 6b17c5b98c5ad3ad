package auth

import (
	"sort"
	"strings"
)

// Principal is an authenticated caller reconstructed from a bearer token on
// every request. It is immutable after construction and carries no server
// side session state.
type Principal struct {
	Subject  string
	Email    string
	Username string
	Roles    []string
	TenantID string
}

// HasTenant reports whether the principal is bound to a tenant.
func (p Principal) HasTenant() bool { return p.TenantID != "" }

// Guard makes allow/deny decisions from a caller's resolved identity. It
// composes the token verifier and the permission catalog and performs no
// I/O: every decision is a pure function of its inputs.
type Guard struct {
	catalog *Catalog
	tokens  *Tokens
}

// NewGuard constructs a Guard over the given catalog and token verifier.
func NewGuard(catalog *Catalog, tokens *Tokens) *Guard {
	return &Guard{catalog: catalog, tokens: tokens}
}

// Catalog returns the permission catalog backing this guard.
func (g *Guard) Catalog() *Catalog { return g.catalog }

// Authenticate decodes and validates an access token and resolves the
// principal from its claims. It fails when the token does not decode, is not
// an access token, or carries no subject.
func (g *Guard) Authenticate(token string) (Principal, error) {
	claims, err := g.tokens.Decode(token)
	if err != nil {
		return Principal{}, err
	}
	if err := VerifyType(claims, TokenTypeAccess); err != nil {
		return Principal{}, err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Principal{}, Unauthenticated("token is missing subject")
	}
	return Principal{
		Subject:  subject,
		Email:    claims.Email,
		Username: claims.Username,
		Roles:    dedupeRoles(claims.Roles),
		TenantID: strings.TrimSpace(claims.TenantID),
	}, nil
}

// Authorize checks the principal's effective permission set, derived from
// its roles, against the required permission.
func (g *Guard) Authorize(p Principal, required Permission) error {
	if g.catalog.HasPermission(p.Roles, required) {
		return nil
	}
	return &AuthorizationError{Required: required, Roles: p.Roles}
}

// EffectivePermissions returns the principal's full permission set in sorted
// order, for surfaces that report capabilities (e.g. /v1/auth/me).
func (g *Guard) EffectivePermissions(p Principal) []Permission {
	set := g.catalog.EffectivePermissions(p.Roles)
	out := make([]Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
