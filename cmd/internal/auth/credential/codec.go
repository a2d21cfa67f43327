package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authgate/cmd/account"
	"authgate/cmd/account/ids"
)

// MinSecretBytes is the shortest HMAC secret NewCodec accepts.
const MinSecretBytes = 32

// Config holds the signing parameters of a Codec.
type Config struct {
	// Secret is the HMAC-SHA256 signing key.
	Secret []byte

	// TTL is the default credential lifetime.
	TTL time.Duration

	// Issuer is set as "iss" when non-empty and then required on verify.
	Issuer string

	// Leeway tolerates clock differences when checking exp.
	Leeway time.Duration
}

// Claims is the decoded payload of a verified credential.
type Claims struct {
	AccountID string
	Role      account.Role
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// Issued is a freshly signed credential.
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Codec signs and verifies credentials. It is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrConfig, MinSecretBytes)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrConfig)
	}
	if cfg.Leeway < 0 {
		return nil, fmt.Errorf("%w: leeway must not be negative", ErrConfig)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: strings.TrimSpace(cfg.Issuer),
		leeway: cfg.Leeway,
	}, nil
}

// TTL returns the default lifetime applied when Issue is called with ttl <= 0.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a credential for accountID. A ttl <= 0 uses the configured default.
func (c *Codec) Issue(accountID string, role account.Role, ttl time.Duration, now time.Time) (Issued, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Issued{}, fmt.Errorf("credential: empty account id")
	}
	if !role.Valid() {
		return Issued{}, fmt.Errorf("credential: unknown role %q", role)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if now.IsZero() {
		now = time.Now()
	}
	// NumericDate has second precision; keep Issued consistent with what verifies.
	now = now.UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	jti, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, fmt.Errorf("credential: jti: %w", err)
	}

	claims := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
			Issuer:    c.issuer,
		},
		Role: string(role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("credential: sign: %w", err)
	}

	return Issued{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify checks the signature and claims of token at instant now.
// Every failure wraps ErrInvalid.
func (c *Codec) Verify(token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	var wc wireClaims
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &wc, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalid
	}

	if strings.TrimSpace(wc.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	if !ids.IsULID(wc.ID) {
		return Claims{}, fmt.Errorf("%w: missing or malformed jti", ErrInvalid)
	}
	role, ok := account.ParseRole(wc.Role)
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown role", ErrInvalid)
	}

	out := Claims{
		AccountID: wc.Subject,
		Role:      role,
		ID:        wc.ID,
		Issuer:    wc.Issuer,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time.UTC()
	}
	if wc.ExpiresAt != nil {
		out.ExpiresAt = wc.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// IsInvalid reports whether err is a credential verification failure.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalid) }
