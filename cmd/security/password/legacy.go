package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

func isBcryptHash(encoded string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(encoded, p) {
			return true
		}
	}
	return false
}

// verifyBcrypt checks hashes written by the previous user table.
// bcrypt compares in constant time internally.
func verifyBcrypt(encoded, password string) (bool, error) {
	if cost, err := bcrypt.Cost([]byte(encoded)); err != nil || cost > bcryptMaxCost {
		return false, ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// bcryptMaxCost caps the work an attacker-supplied hash can demand.
const bcryptMaxCost = 14
