package app

import (
	"fmt"

	"authgate/cmd/internal/auth/credential"
	"authgate/cmd/internal/auth/session"
)

// ValidateSecurityConfig enforces the startup security policy: the signing key
// must be present and at least credential.MinSecretBytes long.
func ValidateSecurityConfig(sess session.Config) error {
	if len(sess.Secret) == 0 {
		return fmt.Errorf("security policy: AUTHGATE_JWT_SECRET is missing")
	}
	if len(sess.Secret) < credential.MinSecretBytes {
		return fmt.Errorf("security policy: AUTHGATE_JWT_SECRET is too short (min %d bytes)", credential.MinSecretBytes)
	}
	if sess.TTL <= 0 {
		return fmt.Errorf("security policy: credential lifetime must be positive")
	}
	return nil
}
