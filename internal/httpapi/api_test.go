package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nexushub.org/internal/auth"
	"nexushub.org/internal/crm"
	"nexushub.org/internal/identity"
)

// In-memory stores backing the end-to-end tests.

type memUsers struct {
	byID map[string]*identity.User
}

func (m *memUsers) Create(ctx context.Context, u *identity.User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email || existing.Username == u.Username {
			return identity.ErrAlreadyExists
		}
	}
	copied := *u
	m.byID[u.ID] = &copied
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*identity.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) FindByLogin(ctx context.Context, login string) (*identity.User, error) {
	for _, u := range m.byID {
		if u.Email == login || u.Username == login {
			copied := *u
			return &copied, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *memUsers) ListByTenant(ctx context.Context, tenantID string, skip, limit int) ([]*identity.User, error) {
	var out []*identity.User
	for _, u := range m.byID {
		if u.TenantID == tenantID {
			copied := *u
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memUsers) UpdatePassword(ctx context.Context, userID, hash string) error {
	u, ok := m.byID[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	u, ok := m.byID[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type memTenants struct {
	byID map[string]*identity.Tenant
}

func (m *memTenants) Create(ctx context.Context, t *identity.Tenant) error {
	copied := *t
	m.byID[t.ID] = &copied
	return nil
}

func (m *memTenants) Find(ctx context.Context, id string) (*identity.Tenant, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return t, nil
}

func (m *memTenants) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	for _, t := range m.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, identity.ErrNotFound
}

type memContacts struct {
	byID map[string]*crm.Contact
}

func (m *memContacts) visible(tenantID string, c *crm.Contact) bool {
	return tenantID == "" || c.TenantID == tenantID
}

func (m *memContacts) Create(ctx context.Context, c *crm.Contact) error {
	copied := *c
	m.byID[c.ID] = &copied
	return nil
}

func (m *memContacts) Find(ctx context.Context, tenantID, id string) (*crm.Contact, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, crm.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memContacts) List(ctx context.Context, tenantID string, f crm.ContactFilter) ([]*crm.Contact, error) {
	var out []*crm.Contact
	for _, c := range m.byID {
		if m.visible(tenantID, c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memContacts) Update(ctx context.Context, tenantID, id string, upd crm.ContactUpdate) (*crm.Contact, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, crm.ErrNotFound
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
		return crm.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memCompanies struct {
	byID map[string]*crm.Company
}

func (m *memCompanies) visible(tenantID string, c *crm.Company) bool {
	return tenantID == "" || c.TenantID == tenantID
}

func (m *memCompanies) Create(ctx context.Context, c *crm.Company) error {
	copied := *c
	m.byID[c.ID] = &copied
	return nil
}

func (m *memCompanies) Find(ctx context.Context, tenantID, id string) (*crm.Company, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, crm.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memCompanies) List(ctx context.Context, tenantID string, f crm.CompanyFilter) ([]*crm.Company, error) {
	var out []*crm.Company
	for _, c := range m.byID {
		if m.visible(tenantID, c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memCompanies) Update(ctx context.Context, tenantID, id string, upd crm.CompanyUpdate) (*crm.Company, error) {
	c, ok := m.byID[id]
	if !ok || !m.visible(tenantID, c) {
		return nil, crm.ErrNotFound
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
		return crm.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	tenants *memTenants
	users   *memUsers
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	catalog := auth.DefaultCatalog()
	hasher := auth.NewHasher(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	tokens, err := auth.NewTokens([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	guard := auth.NewGuard(catalog, tokens)

	users := &memUsers{byID: map[string]*identity.User{}}
	tenants := &memTenants{byID: map[string]*identity.Tenant{}}
	idSvc := identity.NewService(users, tenants, hasher, tokens)
	crmSvc := crm.NewService(
		&memContacts{byID: map[string]*crm.Contact{}},
		&memCompanies{byID: map[string]*crm.Company{}},
		catalog,
	)

	api := New(Options{
		Guard:    guard,
		Identity: idSvc,
		CRM:      crmSvc,
		Version:  "test",
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		tenants: tenants,
		users:   users,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// seedTenantUser registers a user bound to a tenant and returns its access token.
func (c *apiClient) seedTenantUser(tenantID, email, username string, roles []string) string {
	c.t.Helper()
	if _, ok := c.tenants.byID[tenantID]; !ok {
		c.tenants.byID[tenantID] = &identity.Tenant{ID: tenantID, Name: tenantID, Slug: tenantID, Plan: identity.PlanFree, Status: identity.TenantStatusActive}
	}
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email":    email,
		"username": username,
		"password": "pass1234",
		"tenant_id": tenantID,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("register %s: %d %s", email, resp.StatusCode, b)
	}
	var u identity.User
	decodeBody(c.t, resp, &u)
	if len(roles) > 0 {
		c.users.byID[u.ID].Roles = roles
	}

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"login":    username,
		"password": "pass1234",
	}, "")
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("login %s: %d %s", username, resp.StatusCode, b)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(c.t, resp, &login)
	return login.AccessToken
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := c.do(http.MethodGet, path, nil, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	c := newTestAPI(t)
	token := c.seedTenantUser("t-a", "a@example.com", "alice", nil)

	resp := c.do(http.MethodGet, "/v1/auth/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: %d", resp.StatusCode)
	}
	var me struct {
		User        identity.User `json:"user"`
		Permissions []string      `json:"permissions"`
	}
	decodeBody(t, resp, &me)
	if me.User.Username != "alice" {
		t.Fatalf("unexpected user: %+v", me.User)
	}
	if len(me.Permissions) == 0 {
		t.Fatal("expected effective permissions for the default role")
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/v1/contacts", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/contacts", nil, "not-a-jwt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}
}

func TestContactCRUDWithinTenant(t *testing.T) {
	c := newTestAPI(t)
	// Deleting contacts needs contact:delete, which managers do not hold.
	token := c.seedTenantUser("t-a", "a@example.com", "alice", []string{"admin"})

	resp := c.do(http.MethodPost, "/v1/contacts", map[string]any{
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      "grace@navy.mil",
	}, token)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("create contact: %d %s", resp.StatusCode, b)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "/v1/contacts/") {
		t.Fatalf("missing Location header: %q", loc)
	}
	var created crm.Contact
	decodeBody(t, resp, &created)
	if created.TenantID != "t-a" {
		t.Fatalf("tenant not stamped: %q", created.TenantID)
	}

	resp = c.do(http.MethodGet, "/v1/contacts/"+created.ID, nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get contact: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPatch, "/v1/contacts/"+created.ID, map[string]any{
		"email": "grace@example.com",
	}, token)
	var updated crm.Contact
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch contact: %d", resp.StatusCode)
	}
	decodeBody(t, resp, &updated)
	if updated.Email != "grace@example.com" {
		t.Fatalf("patch not applied: %q", updated.Email)
	}

	resp = c.do(http.MethodDelete, "/v1/contacts/"+created.ID, nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete contact: %d", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/contacts/"+created.ID, nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", resp.StatusCode)
	}
}

func TestCrossTenantContactIs404(t *testing.T) {
	c := newTestAPI(t)
	ownerToken := c.seedTenantUser("t-a", "a@example.com", "alice", []string{"manager"})
	intruderToken := c.seedTenantUser("t-b", "b@example.com", "bob", []string{"manager"})

	resp := c.do(http.MethodPost, "/v1/contacts", map[string]any{"first_name": "Ada"}, ownerToken)
	var created crm.Contact
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)

	for _, probe := range []string{created.ID, "nonexistent-id"} {
		resp := c.do(http.MethodGet, "/v1/contacts/"+probe, nil, intruderToken)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("probe %s: expected 404, got %d", probe, resp.StatusCode)
		}
	}
}

func TestPermissionDeniedIs403(t *testing.T) {
	c := newTestAPI(t)
	// Guests hold project:read and task:read only.
	token := c.seedTenantUser("t-a", "g@example.com", "guest1", []string{"guest"})

	resp := c.do(http.MethodGet, "/v1/contacts", nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest list contacts: expected 403, got %d", resp.StatusCode)
	}

	// Regular users can write tasks but not delete contacts.
	userToken := c.seedTenantUser("t-a", "u@example.com", "user1", nil)
	resp = c.do(http.MethodDelete, "/v1/contacts/some-id", nil, userToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user delete contact: expected 403, got %d", resp.StatusCode)
	}
}

func TestListUsersIsTenantScoped(t *testing.T) {
	c := newTestAPI(t)
	token := c.seedTenantUser("t-a", "a@example.com", "alice", nil)
	c.seedTenantUser("t-a", "a2@example.com", "anna", nil)
	c.seedTenantUser("t-b", "b@example.com", "bob", nil)

	resp := c.do(http.MethodGet, "/v1/users", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: %d", resp.StatusCode)
	}
	var body struct {
		Users []identity.User `json:"users"`
	}
	decodeBody(t, resp, &body)
	if len(body.Users) != 2 {
		t.Fatalf("expected 2 users in tenant t-a, got %d", len(body.Users))
	}
	for _, u := range body.Users {
		if u.TenantID != "t-a" {
			t.Fatalf("leaked cross-tenant user: %+v", u)
		}
	}
}

func TestRefreshFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seedTenantUser("t-a", "a@example.com", "alice", nil)

	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"login": "alice", "password": "pass1234",
	}, "")
	var login struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decodeBody(t, resp, &login)

	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": login.RefreshToken,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d", resp.StatusCode)
	}
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, resp, &refreshed)
	if refreshed.AccessToken == "" {
		t.Fatal("empty refreshed access token")
	}

	// An access token is not accepted as a refresh token.
	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": login.AccessToken,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh with access token: expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginFailureIsUniform401(t *testing.T) {
	c := newTestAPI(t)
	c.seedTenantUser("t-a", "a@example.com", "alice", nil)

	for _, body := range []map[string]any{
		{"login": "alice", "password": "wrong"},
		{"login": "nosuchuser", "password": "pass1234"},
	} {
		resp := c.do(http.MethodPost, "/v1/auth/login", body, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("login %v: expected 401, got %d", body, resp.StatusCode)
		}
		var errBody struct {
			Error string `json:"error"`
		}
		decodeBody(t, resp, &errBody)
		if errBody.Error != "invalid credentials" {
			t.Fatalf("message leaks detail: %q", errBody.Error)
		}
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	c := newTestAPI(t)
	token := c.seedTenantUser("t-a", "a@example.com", "alice", nil)

	resp := c.do(http.MethodPost, "/v1/auth/change-password", map[string]any{
		"current_password": "wrong",
		"new_password":     "next5678",
	}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong current password: expected 401, got %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/change-password", map[string]any{
		"current_password": "pass1234",
		"new_password":     "next5678",
	}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"login": "alice", "password": "next5678",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password: %d", resp.StatusCode)
	}
}

func TestRegisterRejectsBadPayloads(t *testing.T) {
	c := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/auth/register", strings.NewReader(`{"email": "a@b.c", "bogus": true}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": "not-an-email", "username": "x", "password": "p",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad email: expected 400, got %d", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/auth/register", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET register: expected 405, got %d", resp.StatusCode)
	}
}

func TestDuplicateRegistrationIs409(t *testing.T) {
	c := newTestAPI(t)
	c.seedTenantUser("t-a", "a@example.com", "alice", nil)

	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": "a@example.com", "username": "alice", "password": "pass1234", "tenant_id": "t-a",
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", resp.StatusCode)
	}
}
