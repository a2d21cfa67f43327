package session

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"authgate/cmd/internal/auth/credential"
)

// Config defines the runtime configuration of the session subsystem.
type Config struct {
	// Secret is the HMAC key used to sign credentials.
	Secret []byte

	// TTL is the credential lifetime.
	TTL time.Duration

	// Issuer is set in the "iss" claim when non-empty.
	Issuer string

	// Leeway tolerates clock differences when checking expiry.
	Leeway time.Duration
}

// DefaultConfig returns defaults for everything except the secret.
func DefaultConfig() Config {
	return Config{
		TTL: 24 * time.Hour,
	}
}

// CodecConfig converts c into the credential codec configuration.
func (c Config) CodecConfig() credential.Config {
	return credential.Config{
		Secret: c.Secret,
		TTL:    c.TTL,
		Issuer: c.Issuer,
		Leeway: c.Leeway,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AUTHGATE_JWT_SECRET (or JWT_SECRET), at least 32 bytes
//
// Optional:
//   - AUTHGATE_JWT_TTL (or JWT_EXPIRES_IN): Go duration or whole days ("1d"); default 24h
//   - AUTHGATE_JWT_ISSUER
//   - AUTHGATE_JWT_LEEWAY: Go duration, >= 0
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	secret := firstEnv("AUTHGATE_JWT_SECRET", "JWT_SECRET")
	if secret == "" {
		return Config{}, fmt.Errorf("%w: AUTHGATE_JWT_SECRET is required", ErrConfig)
	}
	if len(secret) < credential.MinSecretBytes {
		return Config{}, fmt.Errorf("%w: AUTHGATE_JWT_SECRET must be at least %d bytes", ErrConfig, credential.MinSecretBytes)
	}
	cfg.Secret = []byte(secret)

	if v := firstEnv("AUTHGATE_JWT_TTL", "JWT_EXPIRES_IN"); v != "" {
		d, err := ParseTTL(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: AUTHGATE_JWT_TTL %q", ErrConfig, v)
		}
		cfg.TTL = d
	}

	cfg.Issuer = strings.TrimSpace(os.Getenv("AUTHGATE_JWT_ISSUER"))

	if v := strings.TrimSpace(os.Getenv("AUTHGATE_JWT_LEEWAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: AUTHGATE_JWT_LEEWAY %q", ErrConfig, v)
		}
		cfg.Leeway = d
	}

	return cfg, nil
}

// maxTTLDays is the largest day count a time.Duration can hold.
const maxTTLDays = int64(math.MaxInt64 / (24 * time.Hour))

// ParseTTL accepts Go durations ("36h", "90m") and whole days ("1d", "7d").
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil || n <= 0 || n > maxTTLDays {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
