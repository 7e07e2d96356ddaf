package identity

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Denylist answers whether a token id has been revoked since issuance.
//
// Modeled as an explicit capability with a no-op default so deployments
// without a revocation store carry no runtime-nullable reference.
type Denylist interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// NoopDenylist never revokes. Default when no revocation store is configured.
type NoopDenylist struct{}

// IsRevoked implements Denylist.
func (NoopDenylist) IsRevoked(_ context.Context, _ string) (bool, error) {
	return false, nil
}

const redisDenylistPrefix = "revoked:"

// RedisDenylist checks revocation marks written by the auth service.
// The auth service writes "revoked:{jti}" with a TTL matching token expiry.
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist constructs a Denylist backed by Redis.
func NewRedisDenylist(client *redis.Client) (*RedisDenylist, error) {
	if client == nil {
		return nil, ErrInvalidInput
	}
	return &RedisDenylist{client: client}, nil
}

// IsRevoked implements Denylist.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return false, nil
	}

	n, err := d.client.Exists(ctx, redisDenylistPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
