package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// PRINCIPAL - Who is calling
// =============================================================================

// RoleAdmin is the role claim that unlocks back-office routes.
const RoleAdmin = "admin"

// Principal is the verified caller.
type Principal struct {
	UserID generic.UserID
	Admin  bool
}

// Claims is the token payload: sub is the user id, role gates admin routes.
// Tokens are issued elsewhere.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller set by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticator verifies HS256 bearer tokens. With Disabled set every
// request runs as an admin, and X-User-ID names the user for /me routes.
type Authenticator struct {
	Secret   []byte
	Disabled bool
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Disabled {
			p := Principal{UserID: generic.UserID(r.Header.Get("X-User-ID")), Admin: true}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		p, err := a.verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func (a *Authenticator) verify(raw string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, errors.New("token is not valid")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return Principal{UserID: generic.UserID(claims.Subject), Admin: claims.Role == RoleAdmin}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || !p.Admin {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
