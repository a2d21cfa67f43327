package flows

import (
	"os"
	"strings"
)

// Config carries flow-level secrets.
type Config struct {
	// AdminSecret gates RegisterAdmin. Empty disables admin self-registration.
	AdminSecret string
}

// LoadConfigFromEnv reads AUTHGATE_ADMIN_SECRET, falling back to ADMIN_SECRET.
func LoadConfigFromEnv() Config {
	secret := strings.TrimSpace(os.Getenv("AUTHGATE_ADMIN_SECRET"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	}
	return Config{AdminSecret: secret}
}
