package account

import (
	"context"
	"strings"
	"time"
)

// Role is an account's authorization role. It is fixed at creation.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole returns the Role for s, or false when s is not a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Account is authgate's persisted security principal.
// IMPORTANT: PasswordHash and ActiveCredential never leave the store adapters
// and the session layer; use View for anything that is serialized.
type Account struct {
	ID    string
	Name  *string
	Email string

	PasswordHash string `json:"-"`
	Role         Role

	// ActiveCredential is the single-session slot: the exact encoding of the
	// only credential currently accepted for this account. Nil means no session.
	ActiveCredential *string `json:"-"`

	CreatedAt time.Time
}

// HasActiveCredential reports whether the session slot is occupied.
func (a Account) HasActiveCredential() bool {
	return a.ActiveCredential != nil && *a.ActiveCredential != ""
}

// View is the sanitized, client-facing projection of an Account.
type View struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name,omitempty"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// View strips the password hash and the credential slot.
func (a Account) View() View {
	return View{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

// Store is the account persistence boundary.
//
// Contract shared by all adapters:
//   - GetByID/GetByEmail return ErrNotFound (NotFoundError) when absent.
//   - GetByEmail may be a full predicate scan; callers treat it as O(n).
//   - Insert is an atomic conditional insert on ID and returns ConflictError{Field:"id"}
//     when the id exists. Adapters with a uniqueness constraint on email return
//     ConflictError{Field:"email"} too.
//   - SetActiveCredential is an atomic last-writer-wins overwrite and returns
//     ErrNotFound when the account does not exist.
//   - ClearActiveCredential is an atomic removal; clearing an empty slot or a
//     missing account is not an error.
//   - DeleteByIDAndEmail deletes only when the stored email still matches and
//     reports false (nil error) otherwise.
//   - Backend failures wrap ErrBackend.
type Store interface {
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	SetActiveCredential(ctx context.Context, id, credential string) error
	ClearActiveCredential(ctx context.Context, id string) error
	DeleteByIDAndEmail(ctx context.Context, id, email string) (bool, error)
	ListNonAdmin(ctx context.Context) ([]Account, error)
	Ping(ctx context.Context) error
}

// validateNew checks the fields every adapter requires before insert.
func validateNew(op string, a Account) error {
	if strings.TrimSpace(a.ID) == "" {
		return invalid(op, "id is required")
	}
	if strings.TrimSpace(a.Email) == "" {
		return invalid(op, "email is required")
	}
	if a.PasswordHash == "" {
		return invalid(op, "password hash is required")
	}
	if !a.Role.Valid() {
		return invalid(op, "unknown role")
	}
	if a.CreatedAt.IsZero() {
		return invalid(op, "created_at is required")
	}
	return nil
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// clone returns a deep copy so callers never share pointer fields with a store.
func (a Account) clone() Account {
	a.Name = cloneStringPtr(a.Name)
	a.ActiveCredential = cloneStringPtr(a.ActiveCredential)
	return a
}
