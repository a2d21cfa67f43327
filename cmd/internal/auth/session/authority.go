package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authgate/cmd/account"
	"authgate/cmd/internal/auth/credential"
	"authgate/cmd/security/token"
)

// Validation results reported to a Recorder.
const (
	ResultOK                = "ok"
	ResultTokenInvalid      = "token_invalid"
	ResultAccountGone       = "account_gone"
	ResultSessionSuperseded = "session_superseded"
	ResultSessionEnded      = "session_ended"
	ResultStoreError        = "store_error"
)

// Codec signs and verifies credentials.
type Codec interface {
	Issue(accountID string, role account.Role, ttl time.Duration, now time.Time) (credential.Issued, error)
	Verify(token string, now time.Time) (credential.Claims, error)
}

// Recorder observes session outcomes. Implementations must be safe for concurrent use.
type Recorder interface {
	SessionStarted()
	SessionEnded()
	Validated(result string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()                 {}
func (nopRecorder) SessionEnded()                   {}
func (nopRecorder) Validated(string, time.Duration) {}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	AccountID string       `json:"id"`
	Role      account.Role `json:"role"`
}

// Credential is a freshly started session credential.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Authority starts, ends and validates sessions against the account store.
type Authority struct {
	codec Codec
	store account.Store
	log   *slog.Logger
	rec   Recorder
	now   func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(a *Authority) {
		if log != nil {
			a.log = log
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(a *Authority) {
		if rec != nil {
			a.rec = rec
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthority constructs an Authority.
func NewAuthority(codec Codec, store account.Store, opts ...Option) (*Authority, error) {
	if codec == nil || store == nil {
		return nil, fmt.Errorf("%w: codec and store are required", ErrConfig)
	}

	a := &Authority{
		codec: codec,
		store: store,
		log:   slog.Default(),
		rec:   nopRecorder{},
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// StartSession issues a credential for acct and makes it the only valid one.
//
// The slot write is unconditional: a concurrent StartSession for the same account
// may win, in which case this credential is superseded immediately. If the write
// fails, no credential is returned.
func (a *Authority) StartSession(ctx context.Context, acct account.Account) (Credential, error) {
	issued, err := a.codec.Issue(acct.ID, acct.Role, 0, a.now())
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrIssue, err)
	}

	if err := a.store.SetActiveCredential(ctx, acct.ID, issued.Token); err != nil {
		a.log.Error("session.start.store.fail", "err", err, "account_id", acct.ID)
		return Credential{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	a.rec.SessionStarted()
	a.log.Debug("session.start", "account_id", acct.ID, "credential_fp", token.Fingerprint(issued.Token))

	return Credential{Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// EndSession clears the account's slot. Ending a session that is already ended,
// or one whose account no longer exists, succeeds.
func (a *Authority) EndSession(ctx context.Context, accountID string) error {
	if err := a.store.ClearActiveCredential(ctx, accountID); err != nil {
		a.log.Error("session.end.store.fail", "err", err, "account_id", accountID)
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	a.rec.SessionEnded()
	a.log.Debug("session.end", "account_id", accountID)
	return nil
}

// Validate resolves presented to an Identity.
//
// The credential must verify, its account must exist, and the account's slot must
// hold exactly this credential. The role comes from the stored account.
func (a *Authority) Validate(ctx context.Context, presented string) (Identity, error) {
	start := time.Now()

	id, result, err := a.validate(ctx, presented)
	a.rec.Validated(result, time.Since(start))

	if err != nil {
		if result == ResultStoreError {
			a.log.Error("session.validate.store.fail", "err", err)
		} else {
			a.log.Debug("session.validate.reject", "reason", result, "credential_fp", token.Fingerprint(presented))
		}
		return Identity{}, err
	}
	return id, nil
}

func (a *Authority) validate(ctx context.Context, presented string) (Identity, string, error) {
	claims, err := a.codec.Verify(presented, a.now())
	if err != nil {
		return Identity{}, ResultTokenInvalid, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	acct, err := a.store.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Identity{}, ResultAccountGone, ErrAccountGone
		}
		return Identity{}, ResultStoreError, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if !acct.HasActiveCredential() {
		return Identity{}, ResultSessionEnded, ErrSessionEnded
	}
	if !token.Equal(*acct.ActiveCredential, presented) {
		return Identity{}, ResultSessionSuperseded, ErrSessionSuperseded
	}

	return Identity{AccountID: acct.ID, Role: acct.Role}, ResultOK, nil
}
