package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls HTTP-level auth behavior.
type Config struct {
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64

	// RegisterRequiresAdmin gates POST /register behind an admin session.
	// When false, /register is open self-service registration.
	RegisterRequiresAdmin bool
}

// DefaultConfig returns the defaults used when no env overrides are set.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:          1 << 20, // 1 MiB
		RegisterRequiresAdmin: true,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		MaxBodyBytes:          envInt64("AUTHGATE_MAX_BODY_BYTES", def.MaxBodyBytes),
		RegisterRequiresAdmin: envBool("AUTHGATE_REGISTER_REQUIRES_ADMIN", def.RegisterRequiresAdmin),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
