// Package gate authenticates HTTP requests against the session authority and
// enforces role requirements on routes.
package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"authgate/cmd/account"
	"authgate/cmd/internal/auth/session"
)

var (
	// ErrMissingCredential is returned when the Authorization header is absent or not a bearer credential.
	ErrMissingCredential = errors.New("missing credential")

	// ErrForbidden is returned when the identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Validator resolves a presented credential to an identity.
type Validator interface {
	Validate(ctx context.Context, presented string) (session.Identity, error)
}

// RejectFunc writes the response for a rejected request. err is ErrMissingCredential,
// ErrForbidden, or an error returned by the Validator.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

// Gate authenticates and authorizes requests.
type Gate struct {
	validator Validator
	reject    RejectFunc
}

// New constructs a Gate. A nil reject writes bare 401/403/500 status codes.
func New(v Validator, reject RejectFunc) *Gate {
	if reject == nil {
		reject = defaultReject
	}
	return &Gate{validator: v, reject: reject}
}

// Authenticate extracts the bearer credential from r and validates it.
func (g *Gate) Authenticate(r *http.Request) (session.Identity, error) {
	cred := BearerToken(r)
	if cred == "" {
		return session.Identity{}, ErrMissingCredential
	}
	return g.validator.Validate(r.Context(), cred)
}

// Authorize checks role equality. There is no role hierarchy: an admin does not
// satisfy a user requirement.
func (g *Gate) Authorize(id session.Identity, required account.Role) error {
	if id.Role != required {
		return ErrForbidden
	}
	return nil
}

// RequireAuth admits requests carrying a valid credential and attaches the identity
// to the request context.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Authenticate(r)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole is RequireAuth plus an exact role check.
func (g *Gate) RequireRole(role account.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Authenticate(r)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		if err := g.Authorize(id, role); err != nil {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// BearerToken returns the credential of an "Authorization: Bearer <c>" header,
// or "" when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	scheme, cred, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(cred)
}

func defaultReject(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, session.ErrStore):
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusUnauthorized)
	}
}
