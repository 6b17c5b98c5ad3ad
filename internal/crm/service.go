package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nexushub.org/internal/auth"
	"nexushub.org/internal/ids"
	"nexushub.org/internal/obs"
)

// Service applies tenant scoping on top of the stores. Permission checks
// happen at the transport layer; this layer guarantees that a caller can
// only see or touch rows belonging to its own tenant.
type Service struct {
	contacts  ContactStore
	companies CompanyStore
	catalog   *auth.Catalog
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the CRM service.
func NewService(contacts ContactStore, companies CompanyStore, catalog *auth.Catalog, opts ...ServiceOption) *Service {
	s := &Service{
		contacts:  contacts,
		companies: companies,
		catalog:   catalog,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scopeFor resolves the tenant scope a principal may operate in. Principals
// without a tenant are only admitted when they hold admin:write, in which
// case they get unscoped access; everyone else is answered with the same
// not-found used for cross-tenant reads.
func (s *Service) scopeFor(p auth.Principal) (string, error) {
	if p.HasTenant() {
		return p.TenantID, nil
	}
	if s.catalog.HasPermission(p.Roles, auth.PermAdminWrite) {
		return "", nil
	}
	obs.TenantDenied()
	return "", ErrNotFound
}

// CreateContact stamps the caller's tenant and owner onto the new record.
func (s *Service) CreateContact(ctx context.Context, p auth.Principal, c Contact) (*Contact, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.FirstName) == "" && strings.TrimSpace(c.LastName) == "" {
		return nil, fmt.Errorf("%w: contact name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	c.ID = ids.New()
	c.TenantID = scope
	if c.TenantID == "" {
		// Unscoped admins may create records for an explicit tenant only.
		return nil, fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	c.OwnerID = p.Subject
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.contacts.Create(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContact loads a contact visible to the caller.
func (s *Service) GetContact(ctx context.Context, p auth.Principal, id string) (*Contact, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	return s.contacts.Find(ctx, scope, id)
}

// ListContacts lists contacts in the caller's tenant.
func (s *Service) ListContacts(ctx context.Context, p auth.Principal, f ContactFilter) ([]*Contact, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	f = clampContactFilter(f)
	return s.contacts.List(ctx, scope, f)
}

// UpdateContact applies a partial update within the caller's tenant.
func (s *Service) UpdateContact(ctx context.Context, p auth.Principal, id string, upd ContactUpdate) (*Contact, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	return s.contacts.Update(ctx, scope, id, upd)
}

// DeleteContact removes a contact within the caller's tenant.
func (s *Service) DeleteContact(ctx context.Context, p auth.Principal, id string) error {
	scope, err := s.scopeFor(p)
	if err != nil {
		return err
	}
	return s.contacts.Delete(ctx, scope, id)
}

// CreateCompany stamps the caller's tenant and owner onto the new record.
func (s *Service) CreateCompany(ctx context.Context, p auth.Principal, c Company) (*Company, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	c.ID = ids.New()
	c.TenantID = scope
	if c.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	c.OwnerID = p.Subject
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.companies.Create(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCompany loads a company visible to the caller.
func (s *Service) GetCompany(ctx context.Context, p auth.Principal, id string) (*Company, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	return s.companies.Find(ctx, scope, id)
}

// ListCompanies lists companies in the caller's tenant.
func (s *Service) ListCompanies(ctx context.Context, p auth.Principal, f CompanyFilter) ([]*Company, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	f = clampCompanyFilter(f)
	return s.companies.List(ctx, scope, f)
}

// UpdateCompany applies a partial update within the caller's tenant.
func (s *Service) UpdateCompany(ctx context.Context, p auth.Principal, id string, upd CompanyUpdate) (*Company, error) {
	scope, err := s.scopeFor(p)
	if err != nil {
		return nil, err
	}
	return s.companies.Update(ctx, scope, id, upd)
}

// DeleteCompany removes a company within the caller's tenant.
func (s *Service) DeleteCompany(ctx context.Context, p auth.Principal, id string) error {
	scope, err := s.scopeFor(p)
	if err != nil {
		return err
	}
	return s.companies.Delete(ctx, scope, id)
}

func clampContactFilter(f ContactFilter) ContactFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return f
}

func clampCompanyFilter(f CompanyFilter) CompanyFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return f
}
