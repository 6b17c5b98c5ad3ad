package crm

import "time"

// Contact is a tenant-scoped CRM person record.
type Contact struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	OwnerID   string    `json:"owner_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Company is a tenant-scoped CRM organization record.
type Company struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Size      string    `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactFilter narrows a contact listing. The tenant predicate is not part
// of the filter; it is applied by the store before any of these.
type ContactFilter struct {
	Search    string
	CompanyID string
	OwnerID   string
	Skip      int
	Limit     int
}

// CompanyFilter narrows a company listing.
type CompanyFilter struct {
	Search   string
	Industry string
	Skip     int
	Limit    int
}

// ContactUpdate carries partial changes; nil fields are left untouched.
type ContactUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	CompanyID *string
	Tags      *[]string
}

// CompanyUpdate carries partial changes; nil fields are left untouched.
type CompanyUpdate struct {
	Name     *string
	Domain   *string
	Industry *string
	Size     *string
}
