// Package auth verifies bearer tokens issued by the external auth provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"rvl-week-service/internal/domain"
)

type authCtxKey int

const identityKey authCtxKey = 1

// Claims is what the auth provider puts in its access tokens.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens signed with the provider's shared secret.
type Verifier struct {
	secret   []byte
	elevated map[string]bool
}

func NewVerifier(secret []byte, elevatedRoles []string) *Verifier {
	roles := make(map[string]bool, len(elevatedRoles))
	for _, r := range elevatedRoles {
		roles[r] = true
	}
	return &Verifier{secret: secret, elevated: roles}
}

// Sign issues an access token; the provider does this in production, the
// service only for local development and tests.
func (v *Verifier) Sign(user domain.Identity, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: user.DisplayName,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates tok and returns the identity it asserts.
func (v *Verifier) Parse(tok string) (domain.Identity, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !t.Valid || claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return domain.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Elevated:    v.elevated[claims.Role],
	}, nil
}

// WithAuth attaches the caller's identity to the context if the request carries
// a valid bearer token (header, or access_token query for websockets).
func (v *Verifier) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearer(r); tok != "" {
			if id, err := v.Parse(tok); err == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests that WithAuth did not authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

// IsUnauthorized reports whether err came from a rejected token.
func IsUnauthorized(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}
