package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminator values carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	defaultAccessTTL  = 60 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	minSecretLength = 32
)

// Claims is the JWT claim set used for both access and refresh tokens.
// Subject, expiry and issued-at live in the embedded registered claims.
type Claims struct {
	Email     string   `json:"email,omitempty"`
	Username  string   `json:"username,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
	TokenType string   `json:"type"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies signed bearer tokens with HS256 and a shared
// secret. A token is invalidated solely by expiry; there is no revocation
// list, so logout only clears client-side storage.
type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures Tokens behavior.
type TokenOption func(*Tokens)

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the default refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithIssuer sets the issuer claim stamped into and required from tokens.
func WithIssuer(issuer string) TokenOption {
	return func(t *Tokens) { t.issuer = strings.TrimSpace(issuer) }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs a token issuer/verifier. The signing secret must be
// at least 32 bytes.
func NewTokens(secret []byte, opts ...TokenOption) (*Tokens, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: signing secret must be at least %d bytes", minSecretLength)
	}
	t := &Tokens{
		secret:     secret,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL returns the configured access token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (t *Tokens) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccess signs an access token carrying the domain claims. A zero ttl
// selects the configured default.
func (t *Tokens) IssueAccess(claims Claims, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = t.accessTTL
	}
	return t.issue(claims, TokenTypeAccess, ttl)
}

// IssueRefresh signs a refresh token. A zero ttl selects the configured
// default, which is days where the access default is minutes.
func (t *Tokens) IssueRefresh(claims Claims, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = t.refreshTTL
	}
	return t.issue(claims, TokenTypeRefresh, ttl)
}

func (t *Tokens) issue(claims Claims, tokenType string, ttl time.Duration) (string, error) {
	now := t.now().UTC().Truncate(time.Second)
	claims.TokenType = tokenType
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = uuid.NewString()
	if t.issuer != "" {
		claims.Issuer = t.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and standard claims, including expiry. Any
// failure collapses to an AuthenticationError wrapping ErrInvalidToken; the
// cause is deliberately not distinguished. A token whose expiry equals the
// current instant is already expired.
func (t *Tokens) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalidToken()
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	},
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, invalidToken()
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, invalidToken()
	}
	if strings.TrimSpace(claims.TokenType) == "" {
		return nil, invalidToken()
	}
	return claims, nil
}

// VerifyType fails unless the decoded claims carry the expected token type.
// The message names both types so refresh-token misuse at an access-guarded
// endpoint is diagnosable from logs.
func VerifyType(claims *Claims, expected string) error {
	if claims == nil || claims.TokenType != expected {
		actual := "none"
		if claims != nil && claims.TokenType != "" {
			actual = claims.TokenType
		}
		return Unauthenticated(fmt.Sprintf("invalid token type: expected %s, got %s", expected, actual))
	}
	return nil
}

// Expiry returns the token's expiration instant, or nil when the token does
// not decode. The decode error is not propagated.
func (t *Tokens) Expiry(token string) *time.Time {
	claims, err := t.Decode(token)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time.UTC()
	return &exp
}

// IsExpired reports whether the token is expired, treating undecodable
// tokens as expired.
func (t *Tokens) IsExpired(token string) bool {
	exp := t.Expiry(token)
	if exp == nil {
		return true
	}
	return !t.now().UTC().Before(*exp)
}

func invalidToken() *AuthenticationError {
	return &AuthenticationError{Message: "invalid or expired token", Err: ErrInvalidToken}
}
