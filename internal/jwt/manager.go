package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"meditrack/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthHeader  = errors.New("authorization header missing")
	ErrBadAuthScheme = errors.New("authorization must use the Bearer scheme")
	ErrEmptyToken    = errors.New("bearer token missing")
	ErrRoleForbidden = errors.New("role not allowed")
)

// Manager signs and verifies HS256 access tokens for the emergency API.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, accessTTL time.Duration) *Manager {
	s := strings.TrimSpace(secret)
	if s == "" {
		panic("jwt: empty secret key")
	}
	return &Manager{secret: []byte(s), ttl: accessTTL}
}

// IssueUserToken signs an access token for the user and returns it together
// with the claims it carries.
func (m *Manager) IssueUserToken(userID string, role user.Role) (string, *Claims, error) {
	if !role.Valid() {
		return "", nil, fmt.Errorf("invalid role: %s", role)
	}

	claims := NewUserClaims(userID, role, m.ttl)
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAndValidate verifies the signature and standard claims of a token
// issued by this manager.
func (m *Manager) ParseAndValidate(raw string) (*jwtlib.Token, *Claims, error) {
	claims := &Claims{}
	token, err := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
	).ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !token.Valid {
		return nil, nil, errors.New("invalid token")
	}
	return token, claims, nil
}

// FromAuthorization reads "Authorization: Bearer <token>".
func FromAuthorization(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoAuthHeader
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", ErrBadAuthScheme
	}
	if raw = strings.TrimSpace(raw); raw == "" {
		return "", ErrEmptyToken
	}
	return raw, nil
}

// RoleAllowed asserts the claims' role is one of the allowed.
func RoleAllowed(cl *Claims, allowed ...user.Role) error {
	if slices.Contains(allowed, cl.Role) {
		return nil
	}
	return ErrRoleForbidden
}

type claimsKeyType struct{}

var claimsKey claimsKeyType

// InjectClaims adds validated claims to the context.
func InjectClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// FromContext extracts claims placed by the auth middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}
