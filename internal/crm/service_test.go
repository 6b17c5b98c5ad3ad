package crm

import (
	"context"
	"errors"
	"testing"

	"nexushub.org/internal/auth"
)

type memContacts struct {
	byID map[string]*Contact
}

func newMemContacts() *memContacts { return &memContacts{byID: map[string]*Contact{}} }

func (m *memContacts) visible(tenantID string, c *Contact) bool {
	return tenantID == "" || c.TenantID == tenantID
}

func (m *memContacts) Create(ctx context.Context, c *Contact) error {
	copied := *c
	m.byID[c.ID] = &copied
	return nil
}

func (m *memContacts) Find(ctx context.Context, tenantID, id string) (*Contact, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memContacts) List(ctx context.Context, tenantID string, f ContactFilter) ([]*Contact, error) {
	var out []*Contact
	for _, c := range m.byID {
		if m.visible(tenantID, c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memContacts) Update(ctx context.Context, tenantID, id string, upd ContactUpdate) (*Contact, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, ErrNotFound
	}
	if upd.FirstName != nil {
		c.FirstName = *upd.FirstName
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	copied := *c
	return &copied, nil
}

func (m *memContacts) Delete(ctx context.Context, tenantID, id string) error {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memCompanies struct {
	byID map[string]*Company
}

func newMemCompanies() *memCompanies { return &memCompanies{byID: map[string]*Company{}} }

func (m *memCompanies) visible(tenantID string, c *Company) bool {
	return tenantID == "" || c.TenantID == tenantID
}

func (m *memCompanies) Create(ctx context.Context, c *Company) error {
	copied := *c
	m.byID[c.ID] = &copied
	return nil
}

func (m *memCompanies) Find(ctx context.Context, tenantID, id string) (*Company, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memCompanies) List(ctx context.Context, tenantID string, f CompanyFilter) ([]*Company, error) {
	var out []*Company
	for _, c := range m.byID {
		if m.visible(tenantID, c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memCompanies) Update(ctx context.Context, tenantID, id string, upd CompanyUpdate) (*Company, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	copied := *c
	return &copied, nil
}

func (m *memCompanies) Delete(ctx context.Context, tenantID, id string) error {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func newTestCRM() (*Service, *memContacts, *memCompanies) {
	contacts := newMemContacts()
	companies := newMemCompanies()
	return NewService(contacts, companies, auth.DefaultCatalog()), contacts, companies
}

func tenantPrincipal(subject, tenant string) auth.Principal {
	return auth.Principal{Subject: subject, Roles: []string{"user"}, TenantID: tenant}
}

func TestCreateContactStampsTenantAndOwner(t *testing.T) {
	svc, _, _ := newTestCRM()
	p := tenantPrincipal("u-1", "t-a")

	c, err := svc.CreateContact(context.Background(), p, Contact{
		FirstName: "Ada",
		LastName:  "Lovelace",
		// Caller-supplied tenant and owner must be overridden.
		TenantID: "t-evil",
		OwnerID:  "someone-else",
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if c.TenantID != "t-a" {
		t.Fatalf("tenant not stamped: %q", c.TenantID)
	}
	if c.OwnerID != "u-1" {
		t.Fatalf("owner not stamped: %q", c.OwnerID)
	}
	if c.ID == "" {
		t.Fatal("missing id")
	}
}

func TestCrossTenantReadsLookLikeNotFound(t *testing.T) {
	svc, _, _ := newTestCRM()
	owner := tenantPrincipal("u-1", "t-a")
	intruder := tenantPrincipal("u-2", "t-b")

	c, err := svc.CreateContact(context.Background(), owner, Contact{FirstName: "Ada"})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}

	_, missErr := svc.GetContact(context.Background(), intruder, "no-such-id")
	_, crossErr := svc.GetContact(context.Background(), intruder, c.ID)
	if !errors.Is(missErr, ErrNotFound) || !errors.Is(crossErr, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for both, got %v and %v", missErr, crossErr)
	}

	if _, err := svc.UpdateContact(context.Background(), intruder, c.ID, ContactUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant update: %v", err)
	}
	if err := svc.DeleteContact(context.Background(), intruder, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant delete: %v", err)
	}

	// The record is untouched and still visible to its own tenant.
	if _, err := svc.GetContact(context.Background(), owner, c.ID); err != nil {
		t.Fatalf("owner read after intrusion attempts: %v", err)
	}
}

func TestListContactsIsTenantScoped(t *testing.T) {
	svc, _, _ := newTestCRM()
	a := tenantPrincipal("u-1", "t-a")
	b := tenantPrincipal("u-2", "t-b")

	for range 3 {
		if _, err := svc.CreateContact(context.Background(), a, Contact{FirstName: "A"}); err != nil {
			t.Fatalf("CreateContact: %v", err)
		}
	}
	if _, err := svc.CreateContact(context.Background(), b, Contact{FirstName: "B"}); err != nil {
		t.Fatalf("CreateContact: %v", err)
	}

	got, err := svc.ListContacts(context.Background(), a, ContactFilter{})
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 contacts, got %d", len(got))
	}
	for _, c := range got {
		if c.TenantID != "t-a" {
			t.Fatalf("leaked cross-tenant contact: %+v", c)
		}
	}
}

func TestNoTenantPrincipalRequiresAdminWrite(t *testing.T) {
	svc, _, _ := newTestCRM()
	owner := tenantPrincipal("u-1", "t-a")
	c, err := svc.CreateContact(context.Background(), owner, Contact{FirstName: "Ada"})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}

	// A tenant-less regular user is treated as not-found everywhere.
	orphan := auth.Principal{Subject: "u-9", Roles: []string{"user"}}
	if _, err := svc.GetContact(context.Background(), orphan, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orphan read: %v", err)
	}
	if _, err := svc.ListContacts(context.Background(), orphan, ContactFilter{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orphan list: %v", err)
	}

	// A tenant-less super admin gets unscoped reads.
	root := auth.Principal{Subject: "root", Roles: []string{"super_admin"}}
	if _, err := svc.GetContact(context.Background(), root, c.ID); err != nil {
		t.Fatalf("admin unscoped read: %v", err)
	}
	// But cannot create without a tenant to stamp.
	if _, err := svc.CreateContact(context.Background(), root, Contact{FirstName: "X"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("admin unscoped create: %v", err)
	}
}

func TestCreateContactValidation(t *testing.T) {
	svc, _, _ := newTestCRM()
	p := tenantPrincipal("u-1", "t-a")
	if _, err := svc.CreateContact(context.Background(), p, Contact{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompanyLifecycle(t *testing.T) {
	svc, _, _ := newTestCRM()
	p := tenantPrincipal("u-1", "t-a")

	if _, err := svc.CreateCompany(context.Background(), p, Company{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("company without name: %v", err)
	}

	c, err := svc.CreateCompany(context.Background(), p, Company{Name: "Acme", Industry: "tools"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	if c.TenantID != "t-a" || c.OwnerID != "u-1" {
		t.Fatalf("stamping failed: %+v", c)
	}

	name := "Acme Ltd"
	updated, err := svc.UpdateCompany(context.Background(), p, c.ID, CompanyUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCompany: %v", err)
	}
	if updated.Name != "Acme Ltd" {
		t.Fatalf("update not applied: %q", updated.Name)
	}

	if err := svc.DeleteCompany(context.Background(), p, c.ID); err != nil {
		t.Fatalf("DeleteCompany: %v", err)
	}
	if _, err := svc.GetCompany(context.Background(), p, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
