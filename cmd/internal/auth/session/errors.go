package session

import "errors"

var (
	// ErrTokenInvalid is returned when the credential fails signature or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrAccountGone is returned when the credential's account no longer exists.
	ErrAccountGone = errors.New("account gone")

	// ErrSessionSuperseded is returned when a newer credential has replaced the presented one.
	ErrSessionSuperseded = errors.New("session superseded")

	// ErrSessionEnded is returned when the account has no active session.
	ErrSessionEnded = errors.New("session ended")

	// ErrStore is returned when the account store fails.
	ErrStore = errors.New("session store failure")

	// ErrIssue is returned when a credential cannot be signed.
	ErrIssue = errors.New("credential issue failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsSessionInvalid reports whether err means the credential verified but no longer
// matches the account's active slot.
func IsSessionInvalid(err error) bool {
	return errors.Is(err, ErrSessionSuperseded) || errors.Is(err, ErrSessionEnded)
}

// IsRejection reports whether err is one of the reasons Validate refuses a credential
// (as opposed to an infrastructure failure).
func IsRejection(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrAccountGone) ||
		IsSessionInvalid(err)
}
