package crm

import "context"

// ContactStore persists contacts. Every method takes the caller's tenant
// scope; an empty scope means unscoped access and is only ever passed for
// platform administrators.
type ContactStore interface {
	Create(ctx context.Context, c *Contact) error
	Find(ctx context.Context, tenantID, id string) (*Contact, error)
	List(ctx context.Context, tenantID string, f ContactFilter) ([]*Contact, error)
	Update(ctx context.Context, tenantID, id string, upd ContactUpdate) (*Contact, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// CompanyStore persists companies under the same scoping rules.
type CompanyStore interface {
	Create(ctx context.Context, c *Company) error
	Find(ctx context.Context, tenantID, id string) (*Company, error)
	List(ctx context.Context, tenantID string, f CompanyFilter) ([]*Company, error)
	Update(ctx context.Context, tenantID, id string, upd CompanyUpdate) (*Company, error)
	Delete(ctx context.Context, tenantID, id string) error
}
