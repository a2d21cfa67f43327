package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"authgate/cmd/account"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/security/password"
)

// Flow names reported to a Recorder.
const (
	FlowRegister      = "register"
	FlowRegisterAdmin = "register_admin"
	FlowLogin         = "login"
	FlowLogout        = "logout"
	FlowListUsers     = "list_users"
	FlowDeleteUser    = "delete_user"
)

// PasswordHasher hashes new passwords and verifies stored hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) (bool, error)
}

// Sessions starts and ends sessions.
type Sessions interface {
	StartSession(ctx context.Context, acct account.Account) (session.Credential, error)
	EndSession(ctx context.Context, accountID string) error
}

// Recorder observes flow outcomes. result is "ok" or a Kind.
type Recorder interface {
	FlowResult(flow, result string)
}

type nopRecorder struct{}

func (nopRecorder) FlowResult(string, string) {}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// RegisterAdminInput is the payload of RegisterAdmin. Name is optional.
type RegisterAdminInput struct {
	Name        string
	Email       string
	Password    string
	AdminSecret string
}

// Result is returned by the flows that start a session.
type Result struct {
	Credential session.Credential
	Account    account.View
}

// Service implements the account flows.
type Service struct {
	cfg      Config
	store    account.Store
	sessions Sessions
	hasher   PasswordHasher
	log      *slog.Logger
	rec      Recorder
	now      func() time.Time

	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// WithClock overrides time.Now for account creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, store account.Store, sessions Sessions, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if store == nil || sessions == nil || hasher == nil {
		return nil, errors.New("flows: store, sessions and hasher are required")
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		hasher:   hasher,
		log:      slog.Default(),
		rec:      nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	// Dummy hash for timing-resistant login checks.
	dummy, err := hasher.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("flows: dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates a user account and starts its session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (res Result, err error) {
	const op = "flows.Register"
	defer func() { s.record(FlowRegister, err) }()

	name := strings.TrimSpace(in.Name)
	email := account.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return Result{}, fail(op, KindValidation, ErrMissingFields)
	}

	return s.create(ctx, op, &name, email, in.Password, account.RoleUser)
}

// RegisterAdmin creates an admin account when the caller knows the admin secret.
func (s *Service) RegisterAdmin(ctx context.Context, in RegisterAdminInput) (res Result, err error) {
	const op = "flows.RegisterAdmin"
	defer func() { s.record(FlowRegisterAdmin, err) }()

	email := account.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return Result{}, fail(op, KindValidation, ErrMissingFields)
	}
	if !s.adminSecretMatches(in.AdminSecret) {
		s.log.Warn("auth.register_admin.bad_secret")
		return Result{}, fail(op, KindForbidden, ErrBadAdminSecret)
	}

	var name *string
	if n := strings.TrimSpace(in.Name); n != "" {
		name = &n
	}
	return s.create(ctx, op, name, email, in.Password, account.RoleAdmin)
}

// Login verifies the password and starts a new session, superseding any previous one.
// Unknown email and wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, pw string) (res Result, err error) {
	const op = "flows.Login"
	defer func() { s.record(FlowLogin, err) }()

	email = account.NormalizeEmail(email)
	if email == "" || pw == "" {
		return Result{}, fail(op, KindValidation, ErrMissingFields)
	}

	acct, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if account.IsNotFound(err) {
			_, _ = s.hasher.Verify(s.dummyHash, pw)
			return Result{}, fail(op, KindAuth, ErrInvalidCredentials)
		}
		s.log.Error("auth.login.lookup.fail", "err", err)
		return Result{}, fail(op, KindStore, err)
	}

	ok, err := s.hasher.Verify(acct.PasswordHash, pw)
	if err != nil {
		s.log.Warn("auth.login.hash.unusable", "err", err, "account_id", acct.ID)
	}
	if err != nil || !ok {
		return Result{}, fail(op, KindAuth, ErrInvalidCredentials)
	}

	cred, err := s.sessions.StartSession(ctx, acct)
	if err != nil {
		s.log.Error("auth.login.start_session.fail", "err", err, "account_id", acct.ID)
		return Result{}, fail(op, KindStore, err)
	}

	return Result{Credential: cred, Account: acct.View()}, nil
}

// Logout ends the caller's session.
func (s *Service) Logout(ctx context.Context, id session.Identity) (err error) {
	const op = "flows.Logout"
	defer func() { s.record(FlowLogout, err) }()

	if err := s.sessions.EndSession(ctx, id.AccountID); err != nil {
		s.log.Error("auth.logout.fail", "err", err, "account_id", id.AccountID)
		return fail(op, KindStore, err)
	}
	return nil
}

// Me returns the stored view of the caller's account.
func (s *Service) Me(ctx context.Context, id session.Identity) (account.View, error) {
	const op = "flows.Me"

	acct, err := s.store.GetByID(ctx, id.AccountID)
	if err != nil {
		if account.IsNotFound(err) {
			return account.View{}, fail(op, KindAuth, session.ErrAccountGone)
		}
		return account.View{}, fail(op, KindStore, err)
	}
	return acct.View(), nil
}

// ListUsers returns every non-admin account, without secrets.
func (s *Service) ListUsers(ctx context.Context) (views []account.View, err error) {
	const op = "flows.ListUsers"
	defer func() { s.record(FlowListUsers, err) }()

	accts, err := s.store.ListNonAdmin(ctx)
	if err != nil {
		s.log.Error("auth.users.list.fail", "err", err)
		return nil, fail(op, KindStore, err)
	}

	views = make([]account.View, 0, len(accts))
	for _, a := range accts {
		views = append(views, a.View())
	}
	return views, nil
}

// DeleteUser deletes the account only while id and email still belong together.
// It returns false when no such pairing exists.
func (s *Service) DeleteUser(ctx context.Context, id, email string) (deleted bool, err error) {
	const op = "flows.DeleteUser"
	defer func() { s.record(FlowDeleteUser, err) }()

	id = strings.TrimSpace(id)
	email = account.NormalizeEmail(email)
	if id == "" || email == "" {
		return false, fail(op, KindValidation, ErrMissingFields)
	}

	deleted, err = s.store.DeleteByIDAndEmail(ctx, id, email)
	if err != nil {
		s.log.Error("auth.users.delete.fail", "err", err, "account_id", id)
		return false, fail(op, KindStore, err)
	}
	if deleted {
		s.log.Info("auth.users.delete", "account_id", id)
	}
	return deleted, nil
}

func (s *Service) create(ctx context.Context, op string, name *string, email, pw string, role account.Role) (Result, error) {
	_, err := s.store.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return Result{}, fail(op, KindConflict, ErrDuplicateEmail)
	case !account.IsNotFound(err):
		s.log.Error("auth.register.lookup.fail", "err", err)
		return Result{}, fail(op, KindStore, err)
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		if password.IsPolicyViolation(err) {
			return Result{}, fail(op, KindValidation, err)
		}
		return Result{}, fail(op, KindStore, err)
	}

	now := s.now().UTC()
	id, err := account.NewID(now)
	if err != nil {
		return Result{}, fail(op, KindStore, err)
	}

	acct, err := s.store.Insert(ctx, account.Account{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
	})
	if err != nil {
		switch {
		case account.ConflictField(err) == "email":
			return Result{}, fail(op, KindConflict, ErrDuplicateEmail)
		case account.IsConflict(err):
			return Result{}, fail(op, KindConflict, err)
		default:
			s.log.Error("auth.register.insert.fail", "err", err)
			return Result{}, fail(op, KindStore, err)
		}
	}

	cred, err := s.sessions.StartSession(ctx, acct)
	if err != nil {
		s.log.Error("auth.register.start_session.fail", "err", err, "account_id", acct.ID)
		return Result{}, fail(op, KindStore, err)
	}

	s.log.Info("auth.register", "account_id", acct.ID, "role", string(role))
	return Result{Credential: cred, Account: acct.View()}, nil
}

// adminSecretMatches compares in constant time. An unset secret never matches.
func (s *Service) adminSecretMatches(given string) bool {
	want := s.cfg.AdminSecret
	if want == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

func (s *Service) record(flow string, err error) {
	if err == nil {
		s.rec.FlowResult(flow, "ok")
		return
	}
	s.rec.FlowResult(flow, string(KindOf(err)))
}
