package identity

import (
	"context"
	"time"
)

// UserStore describes persistence operations for user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByLogin resolves a user by email or username.
	FindByLogin(ctx context.Context, login string) (*User, error)
	ListByTenant(ctx context.Context, tenantID string, skip, limit int) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// TenantStore describes persistence operations for tenants.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
}
