package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nexushub.org/internal/auth"
	"nexushub.org/internal/ids"
)

// Service implements registration, login and token refresh on top of the
// authorization core. Tokens are self-contained: nothing is persisted per
// session, so logout is purely a client-side concern.
type Service struct {
	users   UserStore
	tenants TenantStore
	hasher  *auth.Hasher
	tokens  *auth.Tokens
	now     func() time.Time
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

// NewService constructs the identity service.
func NewService(users UserStore, tenants TenantStore, hasher *auth.Hasher, tokens *auth.Tokens, opts ...ServiceOption) *Service {
	s := &Service{
		users:   users,
		tenants: tenants,
		hasher:  hasher,
		tokens:  tokens,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokenPair is the credential set handed out at login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Registration is the input for creating a user account.
type Registration struct {
	Email    string
	Username string
	Password string
	FullName string
	TenantID string
	Roles    []string
}

// Register creates a user with a hashed credential. Roles default to "user"
// when none are given; a tenant id, when present, must reference an existing
// tenant.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(reg.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	username := strings.TrimSpace(reg.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if strings.TrimSpace(reg.Password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	roles := reg.Roles
	if len(roles) == 0 {
		roles = []string{string(auth.RoleUser)}
	}
	tenantID := strings.TrimSpace(reg.TenantID)
	if tenantID != "" {
		if _, err := s.tenants.Find(ctx, tenantID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown tenant", ErrInvalidInput)
			}
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(reg.FullName),
		IsActive:     true,
		Roles:        roles,
		TenantID:     tenantID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and mints a token pair. Unknown login,
// wrong password and disabled account all surface as the same
// AuthenticationError so none of them is enumerable. On success the stored
// hash is upgraded in place when the hashing parameters have been
// strengthened since it was produced.
func (s *Service) Authenticate(ctx context.Context, login, password string) (TokenPair, *User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return TokenPair{}, nil, auth.Unauthenticated("invalid credentials")
	}
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, auth.Unauthenticated("invalid credentials")
		}
		return TokenPair{}, nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return TokenPair{}, nil, auth.Unauthenticated("invalid credentials")
	}
	if !user.IsActive {
		return TokenPair{}, nil, auth.Unauthenticated("user account is disabled")
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		upgraded, err := s.hasher.Hash(password)
		if err != nil {
			return TokenPair{}, nil, err
		}
		if err := s.users.UpdatePassword(ctx, user.ID, upgraded); err != nil {
			return TokenPair{}, nil, err
		}
		user.PasswordHash = upgraded
	}

	loginAt := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, loginAt); err != nil {
		return TokenPair{}, nil, err
	}
	user.LastLoginAt = &loginAt

	pair, err := s.mintTokens(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The subject must
// still resolve to an active user; roles and tenant are re-read from the
// store so the new access token reflects current assignments.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.tokens.Decode(refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := auth.VerifyType(claims, auth.TokenTypeRefresh); err != nil {
		return TokenPair{}, nil, err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return TokenPair{}, nil, auth.Unauthenticated("token is missing subject")
	}
	user, err := s.users.Find(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, auth.Unauthenticated("invalid or expired token")
		}
		return TokenPair{}, nil, err
	}
	if !user.IsActive {
		return TokenPair{}, nil, auth.Unauthenticated("user account is disabled")
	}
	pair, err := s.mintTokens(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.users.Find(ctx, id)
}

// ListUsers returns users belonging to the tenant, paginated.
func (s *Service) ListUsers(ctx context.Context, tenantID string, skip, limit int) ([]*User, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}
	return s.users.ListByTenant(ctx, tenantID, skip, limit)
}

// ChangePassword verifies the current credential and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return auth.Unauthenticated("invalid current password")
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// CreateTenant registers a tenant on the free plan.
func (s *Service) CreateTenant(ctx context.Context, name, slug string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(strings.ToLower(slug))
	if name == "" || slug == "" {
		return nil, fmt.Errorf("%w: tenant name and slug are required", ErrInvalidInput)
	}
	now := s.now().UTC()
	tenant := &Tenant{
		ID:        ids.New(),
		Name:      name,
		Slug:      slug,
		Plan:      PlanFree,
		Status:    TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *Service) mintTokens(user *User) (TokenPair, error) {
	now := s.now().UTC()
	access, err := s.tokens.IssueAccess(auth.Claims{
		Email:            user.Email,
		Username:         user.Username,
		Roles:            user.Roles,
		TenantID:         user.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	}, 0)
	if err != nil {
		return TokenPair{}, err
	}
	// The refresh token carries only the subject; roles and tenant are
	// re-resolved at refresh time.
	refresh, err := s.tokens.IssueRefresh(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	}, 0)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.tokens.AccessTTL()),
		RefreshExpiresAt: now.Add(s.tokens.RefreshTTL()),
	}, nil
}
