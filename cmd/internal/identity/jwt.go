package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// HMACEnvKey is the env var name for the bearer-token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "ATELIER_TOKEN_HMAC_KEY"

	// hmacMinKeyBytes is the minimum accepted secret length for HMAC-SHA256.
	hmacMinKeyBytes = 32
)

var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
)

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a
// minimum byte length. We measure bytes, not runes, because the key is used
// as raw bytes.
func HMACKeyFromEnv() ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if len(b) < hmacMinKeyBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// claims is the JWT claim set issued by the platform's auth service.
type claims struct {
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256 bearer tokens minted by the platform auth
// service and resolves them to an Identity.
type JWTResolver struct {
	key      []byte
	denylist Denylist
	leeway   time.Duration
}

// JWTOption configures JWTResolver behavior.
type JWTOption func(*JWTResolver) error

// WithDenylist enables revocation checks against a Denylist.
func WithDenylist(d Denylist) JWTOption {
	return func(r *JWTResolver) error {
		if d == nil {
			return ErrInvalidInput
		}
		r.denylist = d
		return nil
	}
}

// WithLeeway sets clock-skew tolerance for exp/nbf validation.
func WithLeeway(d time.Duration) JWTOption {
	return func(r *JWTResolver) error {
		if d < 0 {
			return ErrInvalidInput
		}
		r.leeway = d
		return nil
	}
}

// NewJWTResolver constructs a resolver with an explicit HMAC key.
func NewJWTResolver(key []byte, opts ...JWTOption) (*JWTResolver, error) {
	if len(key) < hmacMinKeyBytes {
		return nil, ErrHMACKeyTooShort
	}

	r := &JWTResolver{
		key:      key,
		denylist: NoopDenylist{},
		leeway:   30 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewJWTResolverFromEnv constructs a resolver using ATELIER_TOKEN_HMAC_KEY.
func NewJWTResolverFromEnv(opts ...JWTOption) (*JWTResolver, error) {
	key, err := HMACKeyFromEnv()
	if err != nil {
		return nil, err
	}
	return NewJWTResolver(key, opts...)
}

// Resolve implements Resolver.
//
// Every verification failure collapses into ErrAuthRejected: the gateway must
// not leak why a handshake was refused.
func (r *JWTResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrAuthRejected
	}

	var c claims
	_, err := jwt.ParseWithClaims(credential, &c,
		func(t *jwt.Token) (any, error) { return r.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(r.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrAuthRejected, err)
	}

	role, ok := ParseRole(c.Role)
	if !ok {
		return Identity{}, ErrAuthRejected
	}

	id := Identity{
		TenantID:   strings.TrimSpace(c.TenantID),
		UserID:     strings.TrimSpace(c.Subject),
		Role:       role,
		CustomerID: strings.TrimSpace(c.CustomerID),
	}
	if err := id.Validate(); err != nil {
		return Identity{}, ErrAuthRejected
	}

	if jti := strings.TrimSpace(c.ID); jti != "" {
		revoked, err := r.denylist.IsRevoked(ctx, jti)
		if err != nil {
			// Fail closed: a denylist outage must not admit revoked tokens.
			return Identity{}, fmt.Errorf("%w: denylist: %w", ErrAuthRejected, err)
		}
		if revoked {
			return Identity{}, ErrAuthRejected
		}
	}

	return id, nil
}
