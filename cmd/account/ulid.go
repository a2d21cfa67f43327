package account

import (
	"time"

	"authgate/cmd/account/ids"
)

// NewID returns a new account id (26-char ULID).
func NewID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
