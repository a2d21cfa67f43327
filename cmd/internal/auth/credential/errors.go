package credential

import "errors"

var (
	// ErrInvalid is returned when a credential fails decoding, signature, or claim checks.
	ErrInvalid = errors.New("invalid credential")

	// ErrConfig is returned for an unusable codec configuration.
	ErrConfig = errors.New("invalid credential config")
)
