package app

import (
	"strings"
	"testing"
	"time"

	"authgate/cmd/internal/auth/session"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     session.Config
		wantErr string
	}{
		{name: "missing", cfg: session.Config{TTL: time.Hour}, wantErr: "missing"},
		{name: "short", cfg: session.Config{Secret: []byte("short"), TTL: time.Hour}, wantErr: "too short"},
		{name: "zero ttl", cfg: session.Config{Secret: []byte(strings.Repeat("k", 32))}, wantErr: "lifetime"},
		{name: "ok", cfg: session.Config{Secret: []byte(strings.Repeat("k", 32)), TTL: time.Hour}},
	}

	for _, tc := range cases {
		err := ValidateSecurityConfig(tc.cfg)
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error %v, want containing %q", tc.name, err, tc.wantErr)
		}
	}
}
